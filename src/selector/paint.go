package selector

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Instructions is the banner shown while the overlay is up.
const Instructions = "Click and drag to select an area - Press Escape to cancel"

var (
	tint        = color.NRGBA{A: 0x33}
	borderBlue  = color.RGBA{R: 51, G: 153, B: 255, A: 255}
	borderWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelBox    = color.NRGBA{R: 20, G: 20, B: 20, A: 0xcc}
	labelText   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	outerBorder = 3
	handleSize  = 8
)

// Paint renders the overlay for s into dst: background under a light tint,
// the selected rectangle left untinted with its border, handles and size
// label, and the instruction banner. dst and background share coordinates.
func Paint(dst *image.RGBA, background image.Image, s *Selector) {
	b := dst.Bounds()
	if background != nil {
		draw.Draw(dst, b, background, background.Bounds().Min, draw.Src)
	} else {
		draw.Draw(dst, b, image.Black, image.Point{}, draw.Src)
	}

	r, ok := s.Selection()
	sel := r.Image().Add(b.Min)
	if !ok || sel.Empty() {
		draw.Draw(dst, b, image.NewUniform(tint), image.Point{}, draw.Over)
		drawBanner(dst)
		return
	}

	// Tint the four bands around the selection.
	for _, band := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, sel.Min.Y),
		image.Rect(b.Min.X, sel.Max.Y, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, sel.Min.Y, sel.Min.X, sel.Max.Y),
		image.Rect(sel.Max.X, sel.Min.Y, b.Max.X, sel.Max.Y),
	} {
		draw.Draw(dst, band.Intersect(b), image.NewUniform(tint), image.Point{}, draw.Over)
	}

	drawFrame(dst, sel.Inset(-outerBorder), outerBorder, borderBlue)
	drawFrame(dst, sel, 1, borderWhite)
	for _, c := range []image.Point{sel.Min, {sel.Max.X, sel.Min.Y}, {sel.Min.X, sel.Max.Y}, sel.Max} {
		h := image.Rect(c.X-handleSize/2, c.Y-handleSize/2, c.X+handleSize/2, c.Y+handleSize/2)
		draw.Draw(dst, h.Intersect(b), image.NewUniform(borderWhite), image.Point{}, draw.Src)
		drawFrame(dst, h, 1, borderBlue)
	}

	label := fmt.Sprintf("%dx%d", r.Width, r.Height)
	drawLabel(dst, sel.Min.X+8, sel.Min.Y+25, label)
	drawBanner(dst)
}

func drawBanner(dst *image.RGBA) {
	b := dst.Bounds()
	drawLabel(dst, b.Min.X+10+6, b.Min.Y+10+17, Instructions)
}

// drawLabel writes text with its baseline at (x,y) on a dark box.
func drawLabel(dst *image.RGBA, x, y int, text string) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	box := image.Rect(x-6, y-face.Ascent-4, x+w+6, y+face.Descent+4)
	draw.Draw(dst, box.Intersect(dst.Bounds()), image.NewUniform(labelBox), image.Point{}, draw.Over)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawFrame draws a border of the given width just inside r.
func drawFrame(dst *image.RGBA, r image.Rectangle, width int, c color.Color) {
	src := image.NewUniform(c)
	b := dst.Bounds()
	for _, e := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y+width, r.Min.X+width, r.Max.Y-width),
		image.Rect(r.Max.X-width, r.Min.Y+width, r.Max.X, r.Max.Y-width),
	} {
		draw.Draw(dst, e.Intersect(b), src, image.Point{}, draw.Src)
	}
}
