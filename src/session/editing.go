package session

import (
	"errors"
	"fmt"
	"image"
	"log"

	"flint/src/annotate"
	"flint/src/compositor"
	"flint/src/export"
	"flint/src/geometry"
)

// ErrNoSink is returned by Save or Copy when the destination is not wired.
var ErrNoSink = errors.New("no destination configured")

// Editing is the state of one editing session: the captured base frame, the
// tool engine and the current tool selection. It is owned by the editor's
// event goroutine and passed explicitly to every handler.
type Editing struct {
	base     *image.RGBA
	engine   *annotate.Engine
	settings annotate.Settings

	save export.Sink
	copy export.Sink
}

// NewEditing takes ownership of base for the lifetime of the session.
func NewEditing(base *image.RGBA, settings annotate.Settings, save, copy export.Sink) *Editing {
	return &Editing{
		base:     base,
		engine:   annotate.NewEngine(),
		settings: settings,
		save:     save,
		copy:     copy,
	}
}

// Base returns the captured frame.
func (e *Editing) Base() *image.RGBA { return e.base }

// Settings returns the current tool selection.
func (e *Editing) Settings() annotate.Settings { return e.settings }

// Engine exposes the stroke engine for inspection.
func (e *Editing) Engine() *annotate.Engine { return e.engine }

// PointerDown starts a stroke with the current tool.
func (e *Editing) PointerDown(p geometry.Point) {
	if err := e.engine.Begin(e.settings.Tool, p, e.settings.Style()); err != nil {
		log.Printf("session: begin ignored: %v", err)
	}
}

// PointerMove extends the live stroke. Moves without a stroke are ignored.
func (e *Editing) PointerMove(p geometry.Point) {
	_ = e.engine.Extend(p)
}

// PointerUp extends and commits the live stroke.
func (e *Editing) PointerUp(p geometry.Point) {
	if !e.engine.Drawing() {
		return
	}
	_ = e.engine.Extend(p)
	if err := e.engine.Commit(); err != nil {
		log.Printf("session: commit ignored: %v", err)
	}
}

// SelectTool switches tools, resetting thickness to the tool default.
func (e *Editing) SelectTool(k annotate.ToolKind) string {
	e.settings.SelectTool(k)
	return fmt.Sprintf("Tool: %s (%gpx)", k, e.settings.Thickness)
}

// SelectColor picks palette entry i (0-based).
func (e *Editing) SelectColor(i int) string {
	if i < 0 || i >= len(annotate.Palette) {
		return ""
	}
	e.settings.Color = annotate.Palette[i].Color
	return "Color: " + annotate.Palette[i].Name
}

// StepThickness moves to the next or previous thickness option.
func (e *Editing) StepThickness(dir int) string {
	e.settings.Thickness = annotate.StepThickness(e.settings.Thickness, dir)
	return fmt.Sprintf("Thickness: %gpx", e.settings.Thickness)
}

// Escape drops the live stroke. It reports false when there was none, in
// which case the editor closes.
func (e *Editing) Escape() bool {
	return e.engine.CancelCurrent()
}

// Clear removes every annotation.
func (e *Editing) Clear() string {
	n := e.engine.ClearAll()
	return fmt.Sprintf("Cleared %d annotations", n)
}

// Preview renders the committed strokes plus the live one.
func (e *Editing) Preview() *image.RGBA {
	return compositor.Render(e.base, e.engine.Strokes(), e.engine.Live())
}

// Flatten renders the export image: committed strokes only.
func (e *Editing) Flatten() *image.RGBA {
	return compositor.Render(e.base, e.engine.Strokes(), nil)
}

// Save delivers the flattened image to the file sink.
func (e *Editing) Save() (string, error) { return e.deliver(e.save) }

// Copy delivers the flattened image to the clipboard sink.
func (e *Editing) Copy() (string, error) { return e.deliver(e.copy) }

func (e *Editing) deliver(s export.Sink) (string, error) {
	if s == nil {
		return "", ErrNoSink
	}
	if e.engine.Drawing() {
		// A stroke still under the pointer is not part of the export.
		log.Printf("session: exporting while a stroke is live; it is not included")
	}
	return s.Deliver(e.Flatten())
}
