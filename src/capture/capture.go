package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"

	"flint/src/geometry"
)

// Mode selects what a capture request should return.
type Mode int

const (
	ModeFullScreen Mode = iota
	ModeRegion
	ModeWindow
)

func (m Mode) String() string {
	switch m {
	case ModeFullScreen:
		return "full"
	case ModeRegion:
		return "region"
	case ModeWindow:
		return "window"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a user-facing name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "full", "fullscreen", "screen":
		return ModeFullScreen, nil
	case "region", "rect", "rectangle":
		return ModeRegion, nil
	case "window":
		return ModeWindow, nil
	}
	return ModeFullScreen, fmt.Errorf("unknown capture mode %q", s)
}

// Request describes one capture. Region is only meaningful for ModeRegion
// and WindowID only for ModeWindow. When Interactive is set and the serving
// backend has its own picker, the picker decides the area and Region is
// ignored.
type Request struct {
	Mode        Mode
	Region      geometry.Rect
	WindowID    uint32
	Interactive bool
}

// FullScreen returns a full-screen request.
func FullScreen() Request { return Request{Mode: ModeFullScreen} }

// Region returns a request for the given rectangle in screen pixels.
func Region(r geometry.Rect) Request { return Request{Mode: ModeRegion, Region: r} }

// Window returns a request for a single top-level window.
func Window(id uint32) Request { return Request{Mode: ModeWindow, WindowID: id} }

// Result is an owned RGBA frame plus the backend that produced it.
// Pixels always has a zero origin and a stride of 4*width.
type Result struct {
	Pixels  *image.RGBA
	Backend string
}

// Width returns the frame width in pixels.
func (r *Result) Width() int { return r.Pixels.Rect.Dx() }

// Height returns the frame height in pixels.
func (r *Result) Height() int { return r.Pixels.Rect.Dy() }

// Capabilities advertises which requests a backend serves itself.
// Picker means the backend can let the user choose an area through its
// own UI. Region requests without a usable picker are served as a full
// frame which the coordinator crops.
type Capabilities struct {
	FullScreen bool
	Picker     bool
	Window     bool
}

// Serves reports whether the backend can satisfy req, either directly or
// as a full frame to be cropped. An interactive region needs the backend's
// own picker since there is no rectangle to crop to.
func (c Capabilities) Serves(req Request) bool {
	switch req.Mode {
	case ModeFullScreen:
		return c.FullScreen
	case ModeRegion:
		if req.Interactive {
			return c.Picker
		}
		return c.FullScreen
	case ModeWindow:
		return c.Window
	}
	return false
}

// Backend is one strategy for obtaining pixels from the display.
type Backend interface {
	Name() string
	// Available reports whether the backend can be used in this session.
	Available(ctx context.Context) bool
	Capabilities() Capabilities
	// Capture returns a frame for req. Region requests reach a backend
	// only as interactive picker requests or rewritten to ModeFullScreen.
	Capture(ctx context.Context, req Request) (*image.RGBA, error)
}

var (
	ErrBackendUnavailable = errors.New("no capture backend available")
	ErrPermissionDenied   = errors.New("capture permission denied")
	ErrEncodingFailed     = errors.New("captured data could not be decoded")
	ErrInvalidRegion      = errors.New("capture region has zero area")
	// ErrUnsupportedMode is returned by a backend that is reachable but
	// cannot serve the requested mode. It triggers the fallback hop.
	ErrUnsupportedMode = errors.New("capture mode not supported by backend")
)

// Describe returns a message suitable for showing to the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Capture permission denied - try full screen instead"
	case errors.Is(err, ErrUnsupportedMode):
		return "This capture mode is not supported in the current session"
	case errors.Is(err, ErrBackendUnavailable):
		return "No screen capture method is available in this session"
	case errors.Is(err, ErrEncodingFailed):
		return "The captured image could not be read"
	case errors.Is(err, ErrInvalidRegion):
		return "The selected area is outside the screen"
	case errors.Is(err, context.Canceled):
		return "Capture cancelled"
	default:
		return fmt.Sprintf("Capture failed: %v", err)
	}
}

// toRGBA copies img into a zero-origin RGBA with a tight stride.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
