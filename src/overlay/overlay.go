// Package overlay hosts the region selector in a window that shows a frozen
// full-screen frame.
package overlay

import (
	"context"
	"errors"
	"image"
	"log"
	"os"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/exp/shiny/screen"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/mouse"
	"golang.org/x/mobile/event/paint"
	"golang.org/x/mobile/event/size"

	"flint/src/geometry"
	"flint/src/selector"
)

// ErrNoDisplay is returned when no X display is reachable for the window.
var ErrNoDisplay = errors.New("no display available for the selection overlay")

// Overlay runs at most one selection at a time.
type Overlay struct {
	gate    selector.Gate
	minSide int
}

func New(minSide int) *Overlay { return &Overlay{minSide: minSide} }

// cancelEvent is posted into the window's event queue when ctx ends.
type cancelEvent struct{}

// Select blocks until the user commits or cancels a rectangle over frame.
// Its signature matches session.RegionSelectorFunc.
func (o *Overlay) Select(ctx context.Context, frame *image.RGBA) (geometry.Rect, bool, error) {
	if os.Getenv("DISPLAY") == "" {
		return geometry.Rect{}, false, ErrNoDisplay
	}
	b := frame.Bounds()
	sel, err := o.gate.Start(b.Dx(), b.Dy(), o.minSide)
	if err != nil {
		return geometry.Rect{}, false, err
	}
	// Releases the gate on every exit path; no-op once terminal.
	defer sel.Cancel()

	var winErr error
	driver.Main(func(s screen.Screen) {
		winErr = run(ctx, s, frame, sel)
	})
	if winErr != nil {
		return geometry.Rect{}, false, winErr
	}
	r, ok := sel.Selection()
	if sel.State() != selector.Committed || !ok {
		return geometry.Rect{}, true, nil
	}
	return r, false, nil
}

func run(ctx context.Context, s screen.Screen, frame *image.RGBA, sel *selector.Selector) error {
	b := frame.Bounds()
	w, err := s.NewWindow(&screen.NewWindowOptions{Width: b.Dx(), Height: b.Dy(), Title: "Flint - select area"})
	if err != nil {
		log.Printf("overlay: new window: %v", err)
		return err
	}
	defer w.Release()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.Send(cancelEvent{})
		case <-done:
		}
	}()

	buf, err := s.NewBuffer(b.Size())
	if err != nil {
		log.Printf("overlay: new buffer: %v", err)
		return err
	}
	defer buf.Release()

	for {
		e := w.NextEvent()
		if _, ok := e.(paint.Event); ok {
			selector.Paint(buf.RGBA(), frame, sel)
			w.Upload(image.Point{}, buf, buf.Bounds())
			w.Publish()
			continue
		}
		repaint := handle(sel, e)
		if sel.State().Terminal() {
			return nil
		}
		if repaint {
			w.Send(paint.Event{})
		}
	}
}

// handle applies one window event to sel and reports whether the overlay
// needs repainting.
func handle(sel *selector.Selector, e interface{}) bool {
	switch e := e.(type) {
	case cancelEvent:
		sel.Cancel()
	case lifecycle.Event:
		if e.To == lifecycle.StageDead {
			sel.Cancel()
		}
	case size.Event:
		return true
	case key.Event:
		if e.Code == key.CodeEscape && e.Direction == key.DirPress {
			sel.Cancel()
		}
	case mouse.Event:
		p := geometry.Point{X: float64(e.X), Y: float64(e.Y)}
		switch {
		case e.Button == mouse.ButtonLeft && e.Direction == mouse.DirPress:
			sel.PointerDown(p)
			return true
		case e.Button == mouse.ButtonLeft && e.Direction == mouse.DirRelease:
			sel.PointerUp(p)
			return true
		case e.Button == mouse.ButtonRight && e.Direction == mouse.DirPress:
			sel.Cancel()
		case e.Direction == mouse.DirNone && sel.State() == selector.Dragging:
			sel.PointerMove(p)
			return true
		}
	}
	return false
}
