package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"flint/src/annotate"
	"flint/src/capture"
	"flint/src/geometry"
	"flint/src/singleinstance"
)

type fakeCapturer struct {
	frame *image.RGBA
	err   error
	calls []capture.Request
}

func (f *fakeCapturer) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if req.Mode == capture.ModeRegion && !req.Region.Empty() {
		px, err := capture.Crop(f.frame, req.Region)
		if err != nil {
			return nil, err
		}
		return &capture.Result{Pixels: px, Backend: "fake"}, nil
	}
	return &capture.Result{Pixels: f.frame, Backend: "fake"}, nil
}

type recordingSink struct {
	got    *image.RGBA
	status string
	err    error
}

func (s *recordingSink) Deliver(img *image.RGBA) (string, error) {
	s.got = img
	return s.status, s.err
}

type recordingConn struct {
	req     singleinstance.Request
	success []byte
	errMsg  string
}

func (c *recordingConn) Request() singleinstance.Request { return c.req }
func (c *recordingConn) RespondSuccess(p []byte) error  { c.success = p; return nil }
func (c *recordingConn) RespondError(msg string) error  { c.errMsg = msg; return nil }
func (c *recordingConn) Close() error                   { return nil }

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

func TestEditingStrokeLifecycle(t *testing.T) {
	e := NewEditing(solid(40, 40, gray), annotate.DefaultSettings(), nil, nil)

	e.PointerDown(geometry.Point{X: 5, Y: 5})
	e.PointerMove(geometry.Point{X: 20, Y: 20})
	if !e.Engine().Drawing() {
		t.Fatal("expected a live stroke")
	}
	e.PointerUp(geometry.Point{X: 30, Y: 30})
	if e.Engine().Len() != 1 || e.Engine().Drawing() {
		t.Fatalf("after commit: len=%d drawing=%v", e.Engine().Len(), e.Engine().Drawing())
	}

	// A pointer-up without a stroke is ignored.
	e.PointerUp(geometry.Point{X: 1, Y: 1})
	if e.Engine().Len() != 1 {
		t.Fatalf("stray pointer-up committed a stroke")
	}

	if got := e.Clear(); got != "Cleared 1 annotations" {
		t.Errorf("Clear = %q", got)
	}
}

func TestEditingEscape(t *testing.T) {
	e := NewEditing(solid(10, 10, gray), annotate.DefaultSettings(), nil, nil)
	e.PointerDown(geometry.Point{X: 1, Y: 1})
	if !e.Escape() {
		t.Fatal("escape should cancel the live stroke")
	}
	if e.Escape() {
		t.Fatal("escape without a stroke should report close")
	}
	if e.Engine().Len() != 0 {
		t.Fatal("cancelled stroke was committed")
	}
}

func TestEditingToolControls(t *testing.T) {
	e := NewEditing(solid(10, 10, gray), annotate.DefaultSettings(), nil, nil)
	if got := e.SelectTool(annotate.Highlighter); got != "Tool: highlighter (8px)" {
		t.Errorf("SelectTool = %q", got)
	}
	if got := e.StepThickness(1); got != "Thickness: 12px" {
		t.Errorf("StepThickness = %q", got)
	}
	if got := e.SelectColor(2); got != "Color: blue" || e.Settings().Color != annotate.Palette[2].Color {
		t.Errorf("SelectColor = %q (%v)", got, e.Settings().Color)
	}
	if got := e.SelectColor(99); got != "" {
		t.Errorf("out of range color = %q", got)
	}
}

func TestPreviewIncludesLiveFlattenDoesNot(t *testing.T) {
	e := NewEditing(solid(40, 40, gray), annotate.DefaultSettings(), nil, nil)
	e.PointerDown(geometry.Point{X: 10, Y: 20})
	e.PointerMove(geometry.Point{X: 30, Y: 20})

	if got := e.Preview().RGBAAt(20, 20); got == gray {
		t.Errorf("preview missing live stroke at (20,20)")
	}
	if got := e.Flatten().RGBAAt(20, 20); got != gray {
		t.Errorf("flatten included live stroke: %v", got)
	}
	if e.Base().RGBAAt(20, 20) != gray {
		t.Errorf("base image was modified")
	}
}

func TestSaveAndCopy(t *testing.T) {
	save := &recordingSink{status: "Saved to /tmp/x.png"}
	cp := &recordingSink{status: "Copied to clipboard"}
	e := NewEditing(solid(8, 8, gray), annotate.DefaultSettings(), save, cp)

	if got, err := e.Save(); err != nil || got != "Saved to /tmp/x.png" || save.got == nil {
		t.Errorf("Save = %q, %v", got, err)
	}
	if got, err := e.Copy(); err != nil || got != "Copied to clipboard" || cp.got == nil {
		t.Errorf("Copy = %q, %v", got, err)
	}

	bare := NewEditing(solid(8, 8, gray), annotate.DefaultSettings(), nil, nil)
	if _, err := bare.Save(); !errors.Is(err, ErrNoSink) {
		t.Errorf("expected ErrNoSink, got %v", err)
	}
}

func TestExecuteFullScreenToSink(t *testing.T) {
	c := &fakeCapturer{frame: solid(30, 20, gray)}
	sink := &recordingSink{status: "Copied to clipboard"}
	res, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.FullScreen(),
		Target:   SinkTarget{Sink: sink},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != "Copied to clipboard" || res.Backend != "fake" {
		t.Errorf("result = %+v", res)
	}
	if sink.got == nil || sink.got.Bounds().Dx() != 30 {
		t.Errorf("sink did not receive the frame")
	}
}

func TestExecuteRegionUsesSelector(t *testing.T) {
	frame := solid(100, 100, gray)
	red := color.RGBA{R: 255, A: 255}
	frame.SetRGBA(10, 10, red)
	c := &fakeCapturer{frame: frame}
	sink := &recordingSink{}
	var seen *image.RGBA
	_, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.Request{Mode: capture.ModeRegion},
		SelectRegion: func(_ context.Context, frame *image.RGBA) (geometry.Rect, bool, error) {
			seen = frame
			return geometry.Rect{X: 10, Y: 10, Width: 30, Height: 20}, false, nil
		},
		Target: SinkTarget{Sink: sink},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen == nil || seen.Bounds().Dx() != 100 {
		t.Fatal("selector did not see the frozen full frame")
	}
	if len(c.calls) != 1 || c.calls[0].Mode != capture.ModeFullScreen {
		t.Fatalf("expected only the frozen frame capture, got %+v", c.calls)
	}
	if b := sink.got.Bounds(); b.Dx() != 30 || b.Dy() != 20 {
		t.Errorf("delivered %v", b)
	}
	if got := sink.got.RGBAAt(0, 0); got != red {
		t.Errorf("delivered pixels not cut from the frozen frame: %v", got)
	}
}

func TestExecuteRegionOutsideFrozenFrame(t *testing.T) {
	c := &fakeCapturer{frame: solid(50, 50, gray)}
	conn := &recordingConn{}
	_, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.Request{Mode: capture.ModeRegion},
		SelectRegion: func(context.Context, *image.RGBA) (geometry.Rect, bool, error) {
			return geometry.Rect{X: 60, Y: 60, Width: 10, Height: 10}, false, nil
		},
		Target: DelegatedTarget{Conn: conn},
	})
	if !errors.Is(err, capture.ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
	if conn.errMsg == "" {
		t.Error("client was not told about the failure")
	}
	if len(c.calls) != 1 {
		t.Errorf("capture calls = %+v", c.calls)
	}
}

func TestExecuteRegionWithoutOverlayUsesPicker(t *testing.T) {
	c := &fakeCapturer{frame: solid(10, 10, gray)}
	_, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.Request{Mode: capture.ModeRegion},
		Target:   SinkTarget{Sink: &recordingSink{}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(c.calls) != 1 || !c.calls[0].Interactive {
		t.Fatalf("expected one interactive request, got %+v", c.calls)
	}
}

func TestExecuteSelectionCancelled(t *testing.T) {
	c := &fakeCapturer{frame: solid(10, 10, gray)}
	conn := &recordingConn{}
	_, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.Request{Mode: capture.ModeRegion},
		SelectRegion: func(context.Context, *image.RGBA) (geometry.Rect, bool, error) {
			return geometry.Rect{}, true, nil
		},
		Target: DelegatedTarget{Conn: conn},
	})
	if !errors.Is(err, ErrSelectionCancelled) {
		t.Fatalf("expected ErrSelectionCancelled, got %v", err)
	}
	if conn.errMsg != "selection cancelled" {
		t.Errorf("client told %q", conn.errMsg)
	}
}

func TestExecuteCaptureFailureReported(t *testing.T) {
	c := &fakeCapturer{err: capture.ErrPermissionDenied}
	conn := &recordingConn{}
	_, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.FullScreen(),
		Target:   DelegatedTarget{Conn: conn},
	})
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
	if conn.errMsg != capture.Describe(capture.ErrPermissionDenied) {
		t.Errorf("client told %q", conn.errMsg)
	}
}

func TestExecuteEditorFlattensResult(t *testing.T) {
	c := &fakeCapturer{frame: solid(40, 40, gray)}
	sink := &recordingSink{}
	res, err := Execute(context.Background(), Options{
		Capturer: c,
		Request:  capture.FullScreen(),
		Settings: annotate.DefaultSettings(),
		Edit: func(_ context.Context, e *Editing) error {
			e.PointerDown(geometry.Point{X: 5, Y: 20})
			e.PointerUp(geometry.Point{X: 35, Y: 20})
			return nil
		},
		Target: SinkTarget{Sink: sink},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Image.RGBAAt(20, 20) == gray || sink.got.RGBAAt(20, 20) == gray {
		t.Errorf("annotation missing from the delivered image")
	}
	if c.frame.RGBAAt(20, 20) != gray {
		t.Errorf("captured frame was modified")
	}
}

func TestDelegatedTargetStdoutSendsPNG(t *testing.T) {
	conn := &recordingConn{req: singleinstance.Request{Output: singleinstance.OutputStdout}}
	target := DelegatedTarget{Conn: conn}
	if _, err := target.OnSuccess(solid(4, 3, gray)); err != nil {
		t.Fatalf("OnSuccess: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(conn.success))
	if err != nil {
		t.Fatalf("payload is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("decoded %v", b)
	}
}

func TestDelegatedTargetClipboardSendsStatus(t *testing.T) {
	conn := &recordingConn{req: singleinstance.Request{Output: singleinstance.OutputClipboard}}
	cp := &recordingSink{status: "Copied to clipboard"}
	status, err := DelegatedTarget{Conn: conn, Copy: cp}.OnSuccess(solid(2, 2, gray))
	if err != nil || status != "Copied to clipboard" {
		t.Fatalf("OnSuccess = %q, %v", status, err)
	}
	if string(conn.success) != "Copied to clipboard" || cp.got == nil {
		t.Errorf("conn got %q", conn.success)
	}
}

func TestExecuteResolvesActiveWindow(t *testing.T) {
	c := &fakeCapturer{frame: solid(10, 10, gray)}
	_, err := Execute(context.Background(), Options{
		Capturer:      c,
		Request:       capture.Window(0),
		ResolveWindow: func() (uint32, error) { return 0x2a, nil },
		Target:        SinkTarget{Sink: &recordingSink{}},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(c.calls) != 1 || c.calls[0].WindowID != 0x2a {
		t.Fatalf("calls = %+v", c.calls)
	}
}
