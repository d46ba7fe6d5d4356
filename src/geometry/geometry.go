package geometry

import (
	"fmt"
	"image"
	"math"
)

// DefaultMinSide is the smallest width/height accepted as an intentional drag.
const DefaultMinSide = 10

// Point is a position in pixel space. Pointer events arrive as fractional
// coordinates, so points stay float64 until they become a Rect.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle with a top-left origin.
// Width and Height are never negative once produced by this package.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Empty reports whether the rectangle has zero area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Image converts r into an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// FromImage converts an image.Rectangle into a normalized Rect.
func FromImage(r image.Rectangle) Rect {
	r = r.Canon()
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Normalize returns the rectangle having p0 and p1 as opposite corners.
// The origin is floored and the far corner is floored as well, so the
// result does not depend on argument order.
func Normalize(p0, p1 Point) Rect {
	x0 := int(math.Floor(math.Min(p0.X, p1.X)))
	y0 := int(math.Floor(math.Min(p0.Y, p1.Y)))
	x1 := int(math.Floor(math.Max(p0.X, p1.X)))
	y1 := int(math.Floor(math.Max(p0.Y, p1.Y)))
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Canon turns a rectangle with negative extents into its top-left form.
func Canon(r Rect) Rect {
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// ClampToBounds truncates r so that it lies inside [0,w) x [0,h).
// A rectangle entirely outside the bounds collapses to a zero-size
// rectangle at the nearest clamped origin.
func ClampToBounds(r Rect, w, h int) Rect {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	x0, x1 := clampSpan(r.X, r.Width, w)
	y0, y1 := clampSpan(r.Y, r.Height, h)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// clampSpan clamps the interval between v and v+n into [0,limit]. Edges
// beyond the int range saturate instead of wrapping.
func clampSpan(v, n, limit int) (lo, hi int) {
	end := addSat(v, n)
	if n < 0 {
		v, end = end, v
	}
	return clamp(v, 0, limit), clamp(end, 0, limit)
}

func addSat(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	if b < 0 && a < math.MinInt-b {
		return math.MinInt
	}
	return a + b
}

// IsValidSelection rejects rectangles with either side below minSide.
// A non-positive minSide falls back to DefaultMinSide.
func IsValidSelection(r Rect, minSide int) bool {
	if minSide <= 0 {
		minSide = DefaultMinSide
	}
	return r.Width >= minSide && r.Height >= minSide
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
