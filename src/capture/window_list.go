package capture

import (
	"bytes"
	"fmt"
	"image"
	"log"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

const minWindowSide = 50

// WindowInfo describes one capturable top-level window.
type WindowInfo struct {
	ID        uint32
	Title     string
	Class     string
	Width     int
	Height    int
	Minimized bool
}

// ListWindows returns the managed top-level windows that are large enough
// and not minimized, in the window manager's stacking order.
func ListWindows() ([]WindowInfo, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect X server: %w", err)
	}
	defer conn.Close()

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	clientList, err := internAtom(conn, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	prop, err := xproto.GetProperty(conn, false, root, clientList, xproto.AtomWindow, 0, 4096).Reply()
	if err != nil {
		return nil, fmt.Errorf("read _NET_CLIENT_LIST: %w", err)
	}

	ids := decodeWindowList(prop.Value)
	log.Printf("capture: window manager reports %d clients", len(ids))

	var windows []WindowInfo
	for _, id := range ids {
		info, err := windowInfo(conn, xproto.Window(id))
		if err != nil {
			log.Printf("capture: skipping window 0x%x: %v", id, err)
			continue
		}
		if info.Minimized || info.Width < minWindowSide || info.Height < minWindowSide {
			continue
		}
		windows = append(windows, info)
	}
	return windows, nil
}

// ActiveWindow returns the window the window manager reports as focused.
func ActiveWindow() (uint32, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return 0, fmt.Errorf("connect X server: %w", err)
	}
	defer conn.Close()

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	active, err := internAtom(conn, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, err
	}
	prop, err := xproto.GetProperty(conn, false, root, active, xproto.AtomWindow, 0, 1).Reply()
	if err != nil {
		return 0, fmt.Errorf("read _NET_ACTIVE_WINDOW: %w", err)
	}
	ids := decodeWindowList(prop.Value)
	if len(ids) == 0 || ids[0] == 0 {
		return 0, fmt.Errorf("%w: no active window", ErrInvalidRegion)
	}
	return ids[0], nil
}

func decodeWindowList(value []byte) []uint32 {
	ids := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		ids = append(ids, xgb.Get32(value[i:]))
	}
	return ids
}

func windowInfo(conn *xgb.Conn, w xproto.Window) (WindowInfo, error) {
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(w)).Reply()
	if err != nil {
		return WindowInfo{}, err
	}
	info := WindowInfo{
		ID:     uint32(w),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}

	if utf8, err := internAtom(conn, "UTF8_STRING"); err == nil {
		if name, err := internAtom(conn, "_NET_WM_NAME"); err == nil {
			info.Title = textProperty(conn, w, name, utf8)
		}
	}
	if info.Title == "" {
		info.Title = textProperty(conn, w, xproto.AtomWmName, xproto.AtomString)
	}
	info.Class = windowClass(textProperty(conn, w, xproto.AtomWmClass, xproto.AtomString))
	info.Minimized = isHidden(conn, w)
	return info, nil
}

func textProperty(conn *xgb.Conn, w xproto.Window, prop, typ xproto.Atom) string {
	reply, err := xproto.GetProperty(conn, false, w, prop, typ, 0, 1024).Reply()
	if err != nil || reply.Format != 8 {
		return ""
	}
	return string(reply.Value)
}

// windowClass picks the class half of a WM_CLASS "instance\0class\0" value.
func windowClass(raw string) string {
	parts := bytes.Split([]byte(raw), []byte{0})
	if len(parts) >= 2 && len(parts[1]) > 0 {
		return string(parts[1])
	}
	if len(parts) >= 1 {
		return string(parts[0])
	}
	return ""
}

func isHidden(conn *xgb.Conn, w xproto.Window) bool {
	state, err := internAtom(conn, "_NET_WM_STATE")
	if err != nil {
		return false
	}
	hidden, err := internAtom(conn, "_NET_WM_STATE_HIDDEN")
	if err != nil {
		return false
	}
	reply, err := xproto.GetProperty(conn, false, w, state, xproto.AtomAtom, 0, 64).Reply()
	if err != nil {
		return false
	}
	for _, a := range decodeWindowList(reply.Value) {
		if xproto.Atom(a) == hidden {
			return true
		}
	}
	return false
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern %s: %w", name, err)
	}
	return reply.Atom, nil
}

// grabWindow reads the pixels of a single window straight from the X server.
func grabWindow(id uint32) (*image.RGBA, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("x11: %w: connect X server: %v", ErrBackendUnavailable, err)
	}
	defer conn.Close()

	setup := xproto.Setup(conn)
	drawable := xproto.Drawable(id)
	geom, err := xproto.GetGeometry(conn, drawable).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: %w: window 0x%x geometry: %v", ErrInvalidRegion, id, err)
	}
	if geom.Width == 0 || geom.Height == 0 {
		return nil, fmt.Errorf("x11: %w: window 0x%x is empty", ErrInvalidRegion, id)
	}

	reply, err := xproto.GetImage(conn, xproto.ImageFormatZPixmap, drawable, 0, 0, geom.Width, geom.Height, ^uint32(0)).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: %w: window 0x%x pixels: %v", ErrBackendUnavailable, id, err)
	}

	bpp := bitsPerPixel(setup, reply.Depth)
	img, err := zpixmapToRGBA(reply.Data, int(geom.Width), int(geom.Height), bpp)
	if err != nil {
		return nil, fmt.Errorf("x11: %w: %v", ErrEncodingFailed, err)
	}
	log.Printf("capture: read window 0x%x %dx%d depth=%d", id, geom.Width, geom.Height, reply.Depth)
	return img, nil
}

func bitsPerPixel(setup *xproto.SetupInfo, depth byte) int {
	for _, f := range setup.PixmapFormats {
		if f.Depth == depth {
			return int(f.BitsPerPixel)
		}
	}
	return 0
}

// zpixmapToRGBA converts a little-endian BGRX ZPixmap into opaque RGBA.
func zpixmapToRGBA(data []byte, w, h, bpp int) (*image.RGBA, error) {
	if bpp != 32 {
		return nil, fmt.Errorf("unsupported pixmap format: %d bits per pixel", bpp)
	}
	stride := w * 4
	if len(data) < stride*h {
		return nil, fmt.Errorf("short image data: got %d bytes, want %d", len(data), stride*h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		o := i * 4
		img.Pix[o+0] = data[o+2]
		img.Pix[o+1] = data[o+1]
		img.Pix[o+2] = data[o+0]
		img.Pix[o+3] = 0xff
	}
	return img, nil
}
