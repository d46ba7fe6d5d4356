package selector

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"flint/src/capture"
	"flint/src/geometry"
)

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

type recordingCapturer struct {
	reqs []capture.Request
}

func (r *recordingCapturer) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	r.reqs = append(r.reqs, req)
	return &capture.Result{Pixels: image.NewRGBA(image.Rect(0, 0, req.Region.Width, req.Region.Height)), Backend: "fake"}, nil
}

func TestDragCommits(t *testing.T) {
	s := New(800, 600, 0)
	if s.State() != Idle {
		t.Fatalf("initial state = %s", s.State())
	}
	s.PointerDown(pt(100, 100))
	if s.State() != Dragging {
		t.Fatalf("after down: %s", s.State())
	}
	s.PointerMove(pt(150, 140))
	if r, ok := s.Selection(); !ok || r != (geometry.Rect{X: 100, Y: 100, Width: 50, Height: 40}) {
		t.Fatalf("live selection = %v, %v", r, ok)
	}
	if st := s.PointerUp(pt(160, 150)); st != Committed {
		t.Fatalf("after up: %s", st)
	}

	c := &recordingCapturer{}
	res, err := s.Capture(context.Background(), c)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	want := geometry.Rect{X: 100, Y: 100, Width: 60, Height: 50}
	if len(c.reqs) != 1 || c.reqs[0].Mode != capture.ModeRegion || c.reqs[0].Region != want {
		t.Fatalf("capture request = %+v, want region %v", c.reqs, want)
	}
	if res.Width() != 60 || res.Height() != 50 {
		t.Fatalf("result %dx%d", res.Width(), res.Height())
	}
}

func TestDragUpLeftIsNormalized(t *testing.T) {
	s := New(800, 600, 0)
	s.PointerDown(pt(300, 200))
	s.PointerUp(pt(250, 120))
	r, ok := s.Selection()
	if !ok || r != (geometry.Rect{X: 250, Y: 120, Width: 50, Height: 80}) {
		t.Fatalf("selection = %v, %v", r, ok)
	}
}

func TestDragIsClamped(t *testing.T) {
	s := New(200, 100, 0)
	s.PointerDown(pt(150, 50))
	s.PointerUp(pt(400, -30))
	r, _ := s.Selection()
	if r != (geometry.Rect{X: 150, Y: 0, Width: 50, Height: 50}) {
		t.Fatalf("selection = %v", r)
	}
}

func TestSmallDragCancels(t *testing.T) {
	tests := []struct {
		name string
		end  geometry.Point
	}{
		{"click", pt(10, 10)},
		{"narrow", pt(15, 40)},
		{"flat", pt(40, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(100, 100, 0)
			s.PointerDown(pt(10, 10))
			if st := s.PointerUp(tt.end); st != Cancelled {
				t.Fatalf("state = %s, want cancelled", st)
			}
			if _, err := s.Capture(context.Background(), &recordingCapturer{}); !errors.Is(err, ErrCancelled) {
				t.Fatalf("Capture after cancel: %v", err)
			}
		})
	}
}

func TestMinSideIsConfigurable(t *testing.T) {
	s := New(100, 100, 30)
	s.PointerDown(pt(0, 0))
	if st := s.PointerUp(pt(20, 20)); st != Cancelled {
		t.Fatalf("20x20 with min 30 should cancel, got %s", st)
	}
}

func TestCancelAtAnyTime(t *testing.T) {
	idle := New(100, 100, 0)
	idle.Cancel()
	if idle.State() != Cancelled {
		t.Fatalf("cancel from idle: %s", idle.State())
	}

	drag := New(100, 100, 0)
	drag.PointerDown(pt(1, 1))
	drag.PointerMove(pt(50, 50))
	drag.Cancel()
	if drag.State() != Cancelled {
		t.Fatalf("cancel while dragging: %s", drag.State())
	}
	if _, ok := drag.Selection(); ok {
		t.Fatal("cancelled selector must not report a selection")
	}
}

func TestTerminalStatesIgnoreEvents(t *testing.T) {
	s := New(100, 100, 0)
	s.PointerDown(pt(0, 0))
	s.PointerUp(pt(50, 50))
	s.Cancel()
	s.PointerDown(pt(60, 60))
	s.PointerMove(pt(90, 90))
	if s.State() != Committed {
		t.Fatalf("committed selector changed state to %s", s.State())
	}
	if r, _ := s.Selection(); r.Width != 50 {
		t.Fatalf("committed rectangle changed: %v", r)
	}
}

func TestEventsBeforeDragAreIgnored(t *testing.T) {
	s := New(100, 100, 0)
	s.PointerMove(pt(10, 10))
	if st := s.PointerUp(pt(20, 20)); st != Idle {
		t.Fatalf("pointer-up without a drag moved to %s", st)
	}
	if _, err := s.Capture(context.Background(), &recordingCapturer{}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("Capture before commit: %v", err)
	}
}

func TestGateAdmitsOne(t *testing.T) {
	var g Gate
	first, err := g.Start(100, 100, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := g.Start(100, 100, 0); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start: %v", err)
	}
	first.Cancel()
	if g.Active() {
		t.Fatal("gate still closed after cancel")
	}

	second, err := g.Start(100, 100, 0)
	if err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
	second.PointerDown(pt(0, 0))
	second.PointerUp(pt(50, 50))
	if g.Active() {
		t.Fatal("gate still closed after commit")
	}
}

func fill(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestPaintIdleTintsEverything(t *testing.T) {
	bg := fill(400, 300, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	dst := image.NewRGBA(bg.Bounds())
	Paint(dst, bg, New(400, 300, 0))

	got := dst.RGBAAt(300, 250)
	if got.R >= 200 || got.R < 140 {
		t.Fatalf("idle pixel = %v, want a light tint over the background", got)
	}
	// The banner box darkens its corner further.
	if dst.RGBAAt(12, 12).R >= got.R {
		t.Fatalf("banner missing: %v", dst.RGBAAt(12, 12))
	}
}

func TestPaintDraggingLeavesSelectionClear(t *testing.T) {
	bg := fill(400, 300, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	dst := image.NewRGBA(bg.Bounds())
	s := New(400, 300, 0)
	s.PointerDown(pt(100, 100))
	s.PointerMove(pt(300, 250))
	Paint(dst, bg, s)

	if got := dst.RGBAAt(250, 200); got != bg.RGBAAt(250, 200) {
		t.Fatalf("inside selection = %v, want untouched background", got)
	}
	if got := dst.RGBAAt(50, 280); got.R >= 200 {
		t.Fatalf("outside selection = %v, want tinted", got)
	}
	if got := dst.RGBAAt(98, 200); got != borderBlue {
		t.Fatalf("outer border = %v, want blue", got)
	}
	if got := dst.RGBAAt(100, 200); got != borderWhite {
		t.Fatalf("inner border = %v, want white", got)
	}
}
