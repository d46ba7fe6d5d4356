package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"flint/src/geometry"
)

type fakeBackend struct {
	name      string
	available bool
	caps      Capabilities
	frame     *image.RGBA
	err       error
	calls     []Request
}

func (f *fakeBackend) Name() string                       { return f.name }
func (f *fakeBackend) Available(ctx context.Context) bool { return f.available }
func (f *fakeBackend) Capabilities() Capabilities         { return f.caps }

func (f *fakeBackend) Capture(ctx context.Context, req Request) (*image.RGBA, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.frame, nil
}

// gradient paints each pixel with a color derived from its coordinates so
// crops can be checked pixel by pixel.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func newPortal(frame *image.RGBA, err error) *fakeBackend {
	return &fakeBackend{name: "portal", available: true, caps: Capabilities{FullScreen: true, Picker: true}, frame: frame, err: err}
}

func newDirect(frame *image.RGBA) *fakeBackend {
	return &fakeBackend{name: "x11", available: true, caps: Capabilities{FullScreen: true, Window: true}, frame: frame}
}

func TestCaptureUsesServiceFirst(t *testing.T) {
	portal := newPortal(gradient(50, 40), nil)
	direct := newDirect(gradient(10, 10))
	c := NewCoordinator(portal, direct)

	res, err := c.Capture(context.Background(), FullScreen())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Backend != "portal" || res.Width() != 50 || res.Height() != 40 {
		t.Fatalf("unexpected result backend=%s %dx%d", res.Backend, res.Width(), res.Height())
	}
	if len(direct.calls) != 0 {
		t.Fatalf("direct backend should not be called, got %d calls", len(direct.calls))
	}
}

func TestCaptureFallsBackOnceWhenServiceUnsupported(t *testing.T) {
	portal := newPortal(nil, fmt.Errorf("portal: %w", ErrUnsupportedMode))
	direct := newDirect(gradient(20, 20))
	c := NewCoordinator(portal, direct)

	res, err := c.Capture(context.Background(), FullScreen())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Backend != "x11" {
		t.Fatalf("expected fallback to x11, got %s", res.Backend)
	}
	if len(portal.calls) != 1 || len(direct.calls) != 1 {
		t.Fatalf("expected one call per backend, got portal=%d direct=%d", len(portal.calls), len(direct.calls))
	}
}

func TestCaptureSkipsUnreachableService(t *testing.T) {
	portal := newPortal(gradient(5, 5), nil)
	portal.available = false
	direct := newDirect(gradient(20, 20))

	res, err := NewCoordinator(portal, direct).Capture(context.Background(), FullScreen())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Backend != "x11" || len(portal.calls) != 0 {
		t.Fatalf("expected direct capture without touching the portal")
	}
}

func TestCapturePermissionDeniedIsNotRetried(t *testing.T) {
	portal := newPortal(nil, fmt.Errorf("portal: %w: declined by user", ErrPermissionDenied))
	direct := newDirect(gradient(20, 20))

	_, err := NewCoordinator(portal, direct).Capture(context.Background(), FullScreen())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(direct.calls) != 0 {
		t.Fatalf("declined request must not fall back")
	}
	if Describe(err) == "" {
		t.Fatalf("expected a user message")
	}
}

func TestCaptureEncodingFailureSurfaces(t *testing.T) {
	portal := newPortal(nil, fmt.Errorf("portal: %w", ErrEncodingFailed))
	direct := newDirect(gradient(20, 20))

	_, err := NewCoordinator(portal, direct).Capture(context.Background(), FullScreen())
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("expected ErrEncodingFailed, got %v", err)
	}
}

func TestCaptureBackendUnavailable(t *testing.T) {
	portal := newPortal(nil, nil)
	portal.available = false
	direct := newDirect(nil)
	direct.available = false

	_, err := NewCoordinator(portal, direct).Capture(context.Background(), FullScreen())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	_, err = NewCoordinator(nil, nil).Capture(context.Background(), FullScreen())
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable without backends, got %v", err)
	}
}

func TestCaptureWindowBypassesService(t *testing.T) {
	portal := newPortal(gradient(5, 5), nil)
	direct := newDirect(gradient(30, 30))

	res, err := NewCoordinator(portal, direct).Capture(context.Background(), Window(0x42))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Backend != "x11" || len(portal.calls) != 0 {
		t.Fatalf("window capture should go straight to x11")
	}
	if direct.calls[0].WindowID != 0x42 {
		t.Fatalf("window id not forwarded: %+v", direct.calls[0])
	}
}

func TestCaptureWindowWithoutDirectBackend(t *testing.T) {
	portal := newPortal(gradient(5, 5), nil)
	_, err := NewCoordinator(portal, nil).Capture(context.Background(), Window(7))
	if !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected unavailable+unsupported, got %v", err)
	}
}

func TestCaptureRegionCropsFullFrame(t *testing.T) {
	direct := newDirect(gradient(100, 100))
	c := NewCoordinator(nil, direct)

	res, err := c.Capture(context.Background(), Region(geometry.Rect{X: 10, Y: 10, Width: 30, Height: 20}))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Width() != 30 || res.Height() != 20 {
		t.Fatalf("expected 30x20, got %dx%d", res.Width(), res.Height())
	}
	if got, want := res.Pixels.RGBAAt(0, 0), direct.frame.RGBAAt(10, 10); got != want {
		t.Fatalf("pixel (0,0) = %v, want %v", got, want)
	}
	if direct.calls[0].Mode != ModeFullScreen {
		t.Fatalf("backend should receive a full-frame request, got %s", direct.calls[0].Mode)
	}
}

func TestCaptureRegionClampsToActualFrame(t *testing.T) {
	// The display claims to be larger than the frame the backend returns.
	direct := newDirect(gradient(80, 60))
	res, err := NewCoordinator(nil, direct).Capture(context.Background(), Region(geometry.Rect{X: 70, Y: 50, Width: 40, Height: 40}))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Width() != 10 || res.Height() != 10 {
		t.Fatalf("expected clamped 10x10, got %dx%d", res.Width(), res.Height())
	}
}

func TestCaptureRegionOutsideFrame(t *testing.T) {
	direct := newDirect(gradient(80, 60))
	_, err := NewCoordinator(nil, direct).Capture(context.Background(), Region(geometry.Rect{X: 200, Y: 200, Width: 40, Height: 40}))
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}

	_, err = NewCoordinator(nil, direct).Capture(context.Background(), Region(geometry.Rect{}))
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion for empty rect, got %v", err)
	}
}

func TestCaptureInteractiveRegionUsesPicker(t *testing.T) {
	portal := newPortal(gradient(33, 22), nil)
	res, err := NewCoordinator(portal, nil).Capture(context.Background(), Request{Mode: ModeRegion, Interactive: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Width() != 33 || res.Height() != 22 {
		t.Fatalf("picker result must be returned untouched, got %dx%d", res.Width(), res.Height())
	}
	if portal.calls[0].Mode != ModeRegion || !portal.calls[0].Interactive {
		t.Fatalf("picker request not forwarded: %+v", portal.calls[0])
	}
}

func TestCaptureInteractiveRegionWithoutPicker(t *testing.T) {
	direct := newDirect(gradient(30, 30))
	_, err := NewCoordinator(nil, direct).Capture(context.Background(), Request{Mode: ModeRegion, Interactive: true})
	if !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected unavailable and unsupported, got %v", err)
	}
	if errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("picker-less backend must not report a bad region: %v", err)
	}
	if len(direct.calls) != 0 {
		t.Fatalf("direct backend should not be called, got %+v", direct.calls)
	}

	// A service without a picker is skipped the same way.
	noPicker := &fakeBackend{name: "portal", available: true, caps: Capabilities{FullScreen: true}, frame: gradient(30, 30)}
	_, err = NewCoordinator(noPicker, direct).Capture(context.Background(), Request{Mode: ModeRegion, Interactive: true})
	if !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected unavailable and unsupported, got %v", err)
	}
	if len(noPicker.calls) != 0 {
		t.Fatalf("service without picker should not be called, got %+v", noPicker.calls)
	}
}

func TestCaptureNormalizesFrameOrigin(t *testing.T) {
	src := gradient(40, 40)
	offset := src.SubImage(image.Rect(10, 10, 30, 30)).(*image.RGBA)
	direct := newDirect(offset)
	res, err := NewCoordinator(nil, direct).Capture(context.Background(), FullScreen())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Pixels.Rect.Min != (image.Point{}) || res.Pixels.Stride != 4*20 {
		t.Fatalf("frame not normalized: rect=%v stride=%d", res.Pixels.Rect, res.Pixels.Stride)
	}
	if res.Pixels.RGBAAt(0, 0) != src.RGBAAt(10, 10) {
		t.Fatalf("normalized frame lost its content")
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{"": ModeFullScreen, "full": ModeFullScreen, "region": ModeRegion, "window": ModeWindow}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("lasso"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
