package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	portalDest        = "org.freedesktop.portal.Desktop"
	portalPath        = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	screenshotMethod  = "org.freedesktop.portal.Screenshot.Screenshot"
	requestInterface  = "org.freedesktop.portal.Request"
	responseSignal    = requestInterface + ".Response"
	requestCloseCall  = requestInterface + ".Close"
	defaultPortalWait = 60 * time.Second
)

// Portal response codes from org.freedesktop.portal.Request.Response.
const (
	portalSuccess   uint32 = 0
	portalCancelled uint32 = 1
	portalEnded     uint32 = 2
)

// portalBus is the part of the session bus the portal backend talks to.
type portalBus interface {
	UniqueName() string
	HasOwner(name string) (bool, error)
	// Subscribe starts delivering Response signals for path. The returned
	// func stops delivery.
	Subscribe(path dbus.ObjectPath) (<-chan *dbus.Signal, func(), error)
	CallScreenshot(opts map[string]dbus.Variant) (dbus.ObjectPath, error)
	CloseRequest(path dbus.ObjectPath) error
	Close() error
}

// PortalBackend captures through the xdg-desktop-portal Screenshot interface.
// Every request is mediated by the consent service, which may show its own
// permission dialog or area picker.
type PortalBackend struct {
	dial    func() (portalBus, error)
	getenv  func(string) string
	timeout time.Duration
	seq     atomic.Uint64
}

// NewPortalBackend returns a backend bound to the session bus. timeout <= 0
// uses the default of 60s.
func NewPortalBackend(timeout time.Duration) *PortalBackend {
	if timeout <= 0 {
		timeout = defaultPortalWait
	}
	return &PortalBackend{dial: dialSessionBus, getenv: os.Getenv, timeout: timeout}
}

func (p *PortalBackend) Name() string { return "portal" }

// Capabilities: the portal cannot capture a chosen window on every session
// type, so window capture is left to the direct backend.
func (p *PortalBackend) Capabilities() Capabilities {
	return Capabilities{FullScreen: true, Picker: true, Window: false}
}

// Available checks for a portal-capable desktop session and a running
// portal service on the session bus.
func (p *PortalBackend) Available(ctx context.Context) bool {
	if p.getenv("WAYLAND_DISPLAY") == "" && p.getenv("XDG_CURRENT_DESKTOP") == "" {
		log.Printf("capture: no Wayland or XDG desktop session, portal skipped")
		return false
	}
	bus, err := p.dial()
	if err != nil {
		log.Printf("capture: session bus unavailable: %v", err)
		return false
	}
	defer bus.Close()
	ok, err := bus.HasOwner(portalDest)
	if err != nil {
		log.Printf("capture: portal lookup failed: %v", err)
		return false
	}
	return ok
}

// Capture performs one request/response exchange with the portal. A
// cancelled or expired ctx closes the pending request and resolves to
// ErrPermissionDenied.
func (p *PortalBackend) Capture(ctx context.Context, req Request) (*image.RGBA, error) {
	if req.Mode == ModeWindow {
		return nil, fmt.Errorf("portal: %w: window", ErrUnsupportedMode)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	bus, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("portal: %w: %v", ErrBackendUnavailable, err)
	}
	defer bus.Close()

	token := fmt.Sprintf("flint%d_%d", os.Getpid(), p.seq.Add(1))
	handle := requestPath(bus.UniqueName(), token)

	// Subscribe before calling so a fast Response cannot be missed.
	sigs, unsubscribe, err := bus.Subscribe(handle)
	if err != nil {
		return nil, fmt.Errorf("portal: %w: subscribe: %v", ErrBackendUnavailable, err)
	}
	defer func() { unsubscribe() }()

	interactive := req.Mode == ModeRegion && req.Interactive
	opts := map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(token),
		"modal":        dbus.MakeVariant(true),
		"interactive":  dbus.MakeVariant(interactive),
	}
	log.Printf("capture: portal request %s mode=%s interactive=%v", token, req.Mode, interactive)

	got, err := bus.CallScreenshot(opts)
	if err != nil {
		return nil, classifyCallError(err)
	}
	if got != handle {
		// Portals older than 0.9 ignore handle_token.
		unsubscribe()
		sigs, unsubscribe, err = bus.Subscribe(got)
		if err != nil {
			return nil, fmt.Errorf("portal: %w: subscribe: %v", ErrBackendUnavailable, err)
		}
		handle = got
	}

	for {
		select {
		case <-ctx.Done():
			if cerr := bus.CloseRequest(handle); cerr != nil {
				log.Printf("capture: closing portal request %s: %v", handle, cerr)
			}
			return nil, fmt.Errorf("portal: %w: %v", ErrPermissionDenied, ctx.Err())
		case sig, ok := <-sigs:
			if !ok {
				return nil, fmt.Errorf("portal: %w: bus closed while waiting", ErrBackendUnavailable)
			}
			if sig.Path != handle || sig.Name != responseSignal {
				continue
			}
			code, results, err := parseResponse(sig.Body)
			if err != nil {
				return nil, fmt.Errorf("portal: %w: %v", ErrEncodingFailed, err)
			}
			return handleResponse(code, results)
		}
	}
}

func handleResponse(code uint32, results map[string]dbus.Variant) (*image.RGBA, error) {
	switch code {
	case portalSuccess:
	case portalCancelled:
		return nil, fmt.Errorf("portal: %w: declined by user", ErrPermissionDenied)
	case portalEnded:
		return nil, fmt.Errorf("portal: %w: request ended by the service", ErrPermissionDenied)
	default:
		return nil, fmt.Errorf("portal: %w: response code %d", ErrPermissionDenied, code)
	}

	v, ok := results["uri"]
	if !ok {
		return nil, fmt.Errorf("portal: %w: response without uri", ErrEncodingFailed)
	}
	uri, ok := v.Value().(string)
	if !ok {
		return nil, fmt.Errorf("portal: %w: uri has type %s", ErrEncodingFailed, v.Signature())
	}
	img, err := decodeURI(uri)
	if err != nil {
		return nil, fmt.Errorf("portal: %w: %v", ErrEncodingFailed, err)
	}
	return img, nil
}

func decodeURI(uri string) (*image.RGBA, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	f, err := os.Open(u.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %v", u.Path, err)
	}
	return toRGBA(img), nil
}

func parseResponse(body []interface{}) (uint32, map[string]dbus.Variant, error) {
	if len(body) < 2 {
		return 0, nil, fmt.Errorf("response body has %d fields", len(body))
	}
	code, ok := body[0].(uint32)
	if !ok {
		return 0, nil, fmt.Errorf("response code has type %T", body[0])
	}
	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, nil, fmt.Errorf("response results have type %T", body[1])
	}
	return code, results, nil
}

// requestPath predicts the Request object path the portal will use for token.
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath("/org/freedesktop/portal/desktop/request/" + sender + "/" + token)
}

func classifyCallError(err error) error {
	name := ""
	var de dbus.Error
	var dep *dbus.Error
	switch {
	case errors.As(err, &de):
		name = de.Name
	case errors.As(err, &dep):
		name = dep.Name
	}
	switch name {
	case "org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownObject":
		return fmt.Errorf("portal: %w: %v", ErrUnsupportedMode, err)
	case "org.freedesktop.portal.Error.NotAllowed":
		return fmt.Errorf("portal: %w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("portal: %w: %v", ErrBackendUnavailable, err)
}

type dbusBus struct {
	conn *dbus.Conn
}

func dialSessionBus() (portalBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &dbusBus{conn: conn}, nil
}

func (b *dbusBus) UniqueName() string {
	names := b.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func (b *dbusBus) HasOwner(name string) (bool, error) {
	var has bool
	err := b.conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, name).Store(&has)
	return has, err
}

func (b *dbusBus) Subscribe(path dbus.ObjectPath) (<-chan *dbus.Signal, func(), error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	}
	if err := b.conn.AddMatchSignal(match...); err != nil {
		return nil, nil, err
	}
	ch := make(chan *dbus.Signal, 4)
	b.conn.Signal(ch)
	var once atomic.Bool
	stop := func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		b.conn.RemoveSignal(ch)
		_ = b.conn.RemoveMatchSignal(match...)
	}
	return ch, stop, nil
}

func (b *dbusBus) CallScreenshot(opts map[string]dbus.Variant) (dbus.ObjectPath, error) {
	var handle dbus.ObjectPath
	call := b.conn.Object(portalDest, portalPath).Call(screenshotMethod, 0, "", opts)
	if call.Err != nil {
		return "", call.Err
	}
	if err := call.Store(&handle); err != nil {
		return "", err
	}
	return handle, nil
}

func (b *dbusBus) CloseRequest(path dbus.ObjectPath) error {
	return b.conn.Object(portalDest, path).Call(requestCloseCall, 0).Err
}

func (b *dbusBus) Close() error { return b.conn.Close() }
