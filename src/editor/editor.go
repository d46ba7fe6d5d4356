// Package editor hosts an annotation session in a window: the captured frame
// on top, a one-line status bar below.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/exp/shiny/screen"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/mouse"
	"golang.org/x/mobile/event/paint"

	"flint/src/annotate"
	"flint/src/geometry"
	"flint/src/session"
)

const statusHeight = 22

// Help is shown in the status bar until the first action.
const Help = "P/L/A/H tool  1-8 color  [ ] width  Ctrl+S save  Ctrl+C copy  Del clear  Esc close"

var ErrNoDisplay = errors.New("no display available for the editor")

var (
	statusBG   = color.RGBA{R: 32, G: 32, B: 32, A: 255}
	statusText = color.RGBA{R: 230, G: 230, B: 230, A: 255}
)

type closeEvent struct{}

// Run blocks until the user closes the editor. Its signature matches
// session.EditFunc.
func Run(ctx context.Context, ed *session.Editing) error {
	if os.Getenv("DISPLAY") == "" {
		return ErrNoDisplay
	}
	var winErr error
	driver.Main(func(s screen.Screen) {
		winErr = run(ctx, s, ed)
	})
	return winErr
}

func run(ctx context.Context, s screen.Screen, ed *session.Editing) error {
	b := ed.Base().Bounds()
	winSize := image.Pt(b.Dx(), b.Dy()+statusHeight)
	w, err := s.NewWindow(&screen.NewWindowOptions{Width: winSize.X, Height: winSize.Y, Title: "Flint"})
	if err != nil {
		log.Printf("editor: new window: %v", err)
		return err
	}
	defer w.Release()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.Send(closeEvent{})
		case <-done:
		}
	}()

	buf, err := s.NewBuffer(winSize)
	if err != nil {
		log.Printf("editor: new buffer: %v", err)
		return err
	}
	defer buf.Release()

	status := Help
	for {
		var a action
		switch e := w.NextEvent().(type) {
		case paint.Event:
			Paint(buf.RGBA(), ed, status)
			w.Upload(image.Point{}, buf, buf.Bounds())
			w.Publish()
			continue
		case closeEvent:
			return nil
		case lifecycle.Event:
			if e.To == lifecycle.StageDead {
				return nil
			}
		case key.Event:
			a = handleKey(ed, e)
		case mouse.Event:
			a = handleMouse(ed, e)
		}
		if a.close {
			log.Printf("editor: closed with %d annotations", ed.Engine().Len())
			return nil
		}
		if a.status != "" {
			status = a.status
		}
		if a.repaint || a.status != "" {
			w.Send(paint.Event{})
		}
	}
}

type action struct {
	status  string
	repaint bool
	close   bool
}

// handleKey applies the editor key bindings.
func handleKey(ed *session.Editing, e key.Event) action {
	if e.Direction != key.DirPress {
		return action{}
	}
	if e.Modifiers&key.ModControl != 0 {
		switch e.Code {
		case key.CodeS:
			return result(ed.Save())
		case key.CodeC:
			return result(ed.Copy())
		}
		return action{}
	}
	switch e.Code {
	case key.CodeEscape:
		if ed.Escape() {
			return action{status: "Stroke cancelled", repaint: true}
		}
		return action{close: true}
	case key.CodeDeleteForward, key.CodeDeleteBackspace:
		return action{status: ed.Clear(), repaint: true}
	}
	switch e.Rune {
	case 'p', 'P':
		return action{status: ed.SelectTool(annotate.Pencil)}
	case 'l', 'L':
		return action{status: ed.SelectTool(annotate.Line)}
	case 'a', 'A':
		return action{status: ed.SelectTool(annotate.Arrow)}
	case 'h', 'H':
		return action{status: ed.SelectTool(annotate.Highlighter)}
	case '[':
		return action{status: ed.StepThickness(-1)}
	case ']':
		return action{status: ed.StepThickness(1)}
	}
	if e.Rune >= '1' && e.Rune <= '8' {
		return action{status: ed.SelectColor(int(e.Rune - '1'))}
	}
	return action{}
}

func result(status string, err error) action {
	if err != nil {
		log.Printf("editor: export failed: %v", err)
		return action{status: fmt.Sprintf("Failed: %v", err)}
	}
	return action{status: status}
}

func handleMouse(ed *session.Editing, e mouse.Event) action {
	p := geometry.Point{X: float64(e.X), Y: float64(e.Y)}
	switch {
	case e.Button == mouse.ButtonLeft && e.Direction == mouse.DirPress:
		if int(e.Y) >= ed.Base().Bounds().Dy() {
			return action{}
		}
		ed.PointerDown(p)
	case e.Button == mouse.ButtonLeft && e.Direction == mouse.DirRelease:
		if !ed.Engine().Drawing() {
			return action{}
		}
		ed.PointerUp(p)
	case e.Direction == mouse.DirNone && ed.Engine().Drawing():
		ed.PointerMove(p)
	default:
		return action{}
	}
	return action{repaint: true}
}

// Paint draws the preview and the status bar into dst, which must be the
// base size plus the status bar height.
func Paint(dst *image.RGBA, ed *session.Editing, status string) {
	preview := ed.Preview()
	pb := preview.Bounds()
	draw.Draw(dst, pb, preview, image.Point{}, draw.Src)

	bar := image.Rect(0, pb.Dy(), dst.Bounds().Dx(), dst.Bounds().Dy())
	draw.Draw(dst, bar, image.NewUniform(statusBG), image.Point{}, draw.Src)

	st := ed.Settings()
	line := fmt.Sprintf("%s %gpx %s | %s", st.Tool, st.Thickness, annotate.FormatColor(st.Color), status)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(statusText),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(6, bar.Min.Y+15),
	}
	d.DrawString(line)
}
