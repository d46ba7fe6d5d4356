// Package selector turns pointer drags over a full-display overlay into a
// validated capture rectangle.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"flint/src/capture"
	"flint/src/geometry"
)

// State is the phase of one selection.
type State int

const (
	Idle State = iota
	Dragging
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further events are accepted.
func (s State) Terminal() bool { return s == Committed || s == Cancelled }

var (
	// ErrAlreadyActive is returned when a second selector is started while
	// one is live.
	ErrAlreadyActive = errors.New("a region selection is already active")
	// ErrCancelled is returned by Capture after the selection was aborted.
	ErrCancelled = errors.New("region selection cancelled")
	// ErrNotActive is returned by Capture before the selection finished.
	ErrNotActive = errors.New("region selection not finished")
)

// Gate admits one selector at a time. The zero value is ready to use.
type Gate struct {
	mu     sync.Mutex
	active bool
}

// Start opens a selector over a surface of width x height pixels. The gate
// stays closed until the selector commits or is cancelled.
func (g *Gate) Start(width, height, minSide int) (*Selector, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return nil, ErrAlreadyActive
	}
	g.active = true
	s := New(width, height, minSide)
	s.release = g.release
	return s, nil
}

// Active reports whether a selector is live.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *Gate) release() {
	g.mu.Lock()
	g.active = false
	g.mu.Unlock()
}

// Selector is the state machine behind one overlay. It is driven from a
// single event goroutine and is not safe for concurrent use.
type Selector struct {
	width, height int
	minSide       int

	state   State
	origin  geometry.Point
	current geometry.Point
	result  geometry.Rect
	release func()
}

// New returns an idle selector for a width x height surface without a
// gate. minSide <= 0 uses geometry.DefaultMinSide.
func New(width, height, minSide int) *Selector {
	if minSide <= 0 {
		minSide = geometry.DefaultMinSide
	}
	return &Selector{width: width, height: height, minSide: minSide}
}

// State returns the current phase.
func (s *Selector) State() State { return s.state }

// Bounds returns the surface size the selector clamps against.
func (s *Selector) Bounds() (int, int) { return s.width, s.height }

// PointerDown starts a drag at p. Ignored unless idle.
func (s *Selector) PointerDown(p geometry.Point) {
	if s.state != Idle {
		return
	}
	s.origin, s.current = p, p
	s.state = Dragging
}

// PointerMove updates the drag end point.
func (s *Selector) PointerMove(p geometry.Point) {
	if s.state != Dragging {
		return
	}
	s.current = p
}

// PointerUp ends the drag at p. The selection commits when both sides are
// at least minSide pixels after clamping; otherwise it is cancelled.
func (s *Selector) PointerUp(p geometry.Point) State {
	if s.state != Dragging {
		return s.state
	}
	s.current = p
	r := s.rect()
	if geometry.IsValidSelection(r, s.minSide) {
		s.result = r
		s.finish(Committed)
		log.Printf("selector: committed %s", r)
	} else {
		log.Printf("selector: selection %s below %dpx, cancelled", r, s.minSide)
		s.finish(Cancelled)
	}
	return s.state
}

// Cancel aborts the selection at any time before it commits.
func (s *Selector) Cancel() {
	if s.state.Terminal() {
		return
	}
	log.Printf("selector: cancelled in state %s", s.state)
	s.finish(Cancelled)
}

// Selection returns the rectangle currently spanned by the drag, or the
// committed rectangle. ok is false while idle or after cancel.
func (s *Selector) Selection() (geometry.Rect, bool) {
	switch s.state {
	case Dragging:
		return s.rect(), true
	case Committed:
		return s.result, true
	}
	return geometry.Rect{}, false
}

// Capture hands the committed rectangle to c as a region request.
func (s *Selector) Capture(ctx context.Context, c capture.Capturer) (*capture.Result, error) {
	switch s.state {
	case Committed:
		return c.Capture(ctx, capture.Region(s.result))
	case Cancelled:
		return nil, ErrCancelled
	}
	return nil, ErrNotActive
}

func (s *Selector) rect() geometry.Rect {
	return geometry.ClampToBounds(geometry.Normalize(s.origin, s.current), s.width, s.height)
}

func (s *Selector) finish(st State) {
	s.state = st
	if s.release != nil {
		s.release()
		s.release = nil
	}
}
