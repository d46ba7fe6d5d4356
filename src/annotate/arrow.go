package annotate

import (
	"math"

	"flint/src/geometry"
)

const (
	arrowHeadScale = 3.0
	arrowHalfAngle = math.Pi / 6
)

// Head is the triangular arrowhead derived from an arrow's last two points.
type Head struct {
	Tip, Left, Right geometry.Point
}

// Axis returns the unit vector from the middle of the head's base to its tip.
func (h Head) Axis() geometry.Point {
	mx := (h.Left.X + h.Right.X) / 2
	my := (h.Left.Y + h.Right.Y) / 2
	dx, dy := h.Tip.X-mx, h.Tip.Y-my
	l := math.Hypot(dx, dy)
	if l == 0 {
		return geometry.Point{}
	}
	return geometry.Point{X: dx / l, Y: dy / l}
}

// ArrowHead computes the head for a segment from tail to tip. The head
// length is proportional to thickness. ok is false for a zero-length
// segment, which has no direction.
func ArrowHead(tail, tip geometry.Point, thickness float64) (h Head, ok bool) {
	dx, dy := tip.X-tail.X, tip.Y-tail.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return Head{}, false
	}
	angle := math.Atan2(dy, dx)
	size := arrowHeadScale * math.Max(thickness, 1)
	h.Tip = tip
	h.Left = geometry.Point{
		X: tip.X - size*math.Cos(angle-arrowHalfAngle),
		Y: tip.Y - size*math.Sin(angle-arrowHalfAngle),
	}
	h.Right = geometry.Point{
		X: tip.X - size*math.Cos(angle+arrowHalfAngle),
		Y: tip.Y - size*math.Sin(angle+arrowHalfAngle),
	}
	return h, true
}

// HeadOf returns the head of an arrow stroke.
func HeadOf(s Stroke) (Head, bool) {
	if (s.Tool != Arrow && s.Style.Flags&FlagHead == 0) || len(s.Points) < 2 {
		return Head{}, false
	}
	n := len(s.Points)
	return ArrowHead(s.Points[n-2], s.Points[n-1], s.Style.Thickness)
}
