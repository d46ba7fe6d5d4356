package annotate

import (
	"errors"

	"flint/src/geometry"
)

var (
	// ErrStrokeInProgress is returned by Begin while another stroke is live.
	ErrStrokeInProgress = errors.New("stroke already in progress")
	// ErrNoActiveStroke is returned by Extend and Commit when nothing is live.
	// Both calls are no-ops in that case.
	ErrNoActiveStroke = errors.New("no active stroke")
)

// Engine owns the committed stroke list and at most one live stroke.
// It is not safe for concurrent use; the editor drives it from its event
// loop.
type Engine struct {
	strokes []Stroke
	live    *Stroke
}

// NewEngine returns an empty engine.
func NewEngine() *Engine { return &Engine{} }

// Begin starts a stroke at p.
func (e *Engine) Begin(kind ToolKind, p geometry.Point, style Style) error {
	if e.live != nil {
		return ErrStrokeInProgress
	}
	s := &Stroke{Tool: kind, Style: style}
	if kind.Freehand() {
		s.Points = []geometry.Point{p}
	} else {
		s.Points = []geometry.Point{p, p}
	}
	e.live = s
	return nil
}

// Extend appends p to a freehand stroke, or moves the second anchor of a
// line or arrow.
func (e *Engine) Extend(p geometry.Point) error {
	if e.live == nil {
		return ErrNoActiveStroke
	}
	if e.live.Tool.Freehand() {
		e.live.Points = append(e.live.Points, p)
	} else {
		e.live.Points[1] = p
	}
	return nil
}

// Commit moves the live stroke to the end of the list.
func (e *Engine) Commit() error {
	if e.live == nil {
		return ErrNoActiveStroke
	}
	e.strokes = append(e.strokes, *e.live)
	e.live = nil
	return nil
}

// CancelCurrent drops the live stroke. It reports whether one existed.
func (e *Engine) CancelCurrent() bool {
	had := e.live != nil
	e.live = nil
	return had
}

// ClearAll empties the list, drops any live stroke and returns how many
// committed strokes were removed.
func (e *Engine) ClearAll() int {
	n := len(e.strokes)
	e.strokes = nil
	e.live = nil
	return n
}

// Strokes returns the committed strokes, oldest first. The slice is shared
// with the engine and must not be modified.
func (e *Engine) Strokes() []Stroke { return e.strokes }

// Live returns the in-progress stroke, or nil.
func (e *Engine) Live() *Stroke { return e.live }

// Drawing reports whether a stroke is in progress.
func (e *Engine) Drawing() bool { return e.live != nil }

// Len returns the number of committed strokes.
func (e *Engine) Len() int { return len(e.strokes) }
