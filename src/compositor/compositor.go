// Package compositor flattens a captured frame and its annotation strokes
// into one bitmap. The same code path serves the live preview and export.
package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/srwiley/rasterx"
	"golang.org/x/image/math/fixed"

	"flint/src/annotate"
	"flint/src/geometry"
)

// Render returns a new bitmap: a copy of base with strokes painted oldest
// first and live, when non-nil, painted last. base is never modified.
func Render(base *image.RGBA, strokes []annotate.Stroke, live *annotate.Stroke) *image.RGBA {
	b := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	rowBytes := 4 * b.Dx()
	for y := 0; y < b.Dy(); y++ {
		so := base.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+rowBytes], base.Pix[so:so+rowBytes])
	}

	p := newPainter(out)
	for _, s := range strokes {
		p.paint(s)
	}
	if live != nil {
		p.paint(*live)
	}
	return out
}

// painter keeps one rasterizer per output bitmap.
type painter struct {
	stroker *rasterx.Stroker
	filler  *rasterx.Filler
}

func newPainter(dst *image.RGBA) *painter {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	return &painter{
		stroker: rasterx.NewStroker(w, h, scanner),
		filler:  rasterx.NewFiller(w, h, scanner),
	}
}

func (p *painter) paint(s annotate.Stroke) {
	pts := dedupe(s.Points)
	if len(pts) == 0 {
		return
	}
	clr := paintColor(s)
	width := s.Style.Thickness
	if width <= 0 {
		width = annotate.DefaultThickness(s.Tool)
	}

	if len(pts) == 1 {
		// A click without movement leaves a round dot.
		p.filler.Clear()
		p.filler.SetColor(clr)
		rasterx.AddCircle(pts[0].X, pts[0].Y, width/2, p.filler)
		p.filler.Draw()
		p.filler.Clear()
	} else {
		p.stroker.Clear()
		p.stroker.SetColor(clr)
		p.stroker.SetStroke(toFixed(width), toFixed(4), rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.Round)
		p.stroker.Start(rasterx.ToFixedP(pts[0].X, pts[0].Y))
		for _, pt := range pts[1:] {
			p.stroker.Line(rasterx.ToFixedP(pt.X, pt.Y))
		}
		p.stroker.Stop(false)
		p.stroker.Draw()
		p.stroker.Clear()
	}

	if head, ok := annotate.HeadOf(s); ok {
		p.filler.Clear()
		p.filler.SetColor(clr)
		p.filler.Start(rasterx.ToFixedP(head.Tip.X, head.Tip.Y))
		p.filler.Line(rasterx.ToFixedP(head.Left.X, head.Left.Y))
		p.filler.Line(rasterx.ToFixedP(head.Right.X, head.Right.Y))
		p.filler.Stop(true)
		p.filler.Draw()
		p.filler.Clear()
	}
}

// paintColor returns the paint for s, with highlighter strokes reduced to
// their fixed opacity.
func paintColor(s annotate.Stroke) color.NRGBA {
	c := s.Style.Color
	if s.Translucent() {
		c.A = uint8(math.Round(float64(c.A) * annotate.HighlighterOpacity))
	}
	return c
}

// dedupe drops consecutive repeated points, which carry no direction for
// the stroker.
func dedupe(pts []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, 0, len(pts))
	for i, p := range pts {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
