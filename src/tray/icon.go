package tray

import (
	"image"
	"image/color"
	"log"

	"flint/src/annotate"
	"flint/src/compositor"
	"flint/src/export"
	"flint/src/geometry"
)

const iconSize = 32

// Icon renders the tray icon: a selection frame with an arrow through it,
// drawn with the same compositor the editor uses.
func Icon() []byte {
	base := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	blue := color.NRGBA{R: 51, G: 153, B: 255, A: 255}
	frame := annotate.Stroke{
		Tool:   annotate.Pencil,
		Points: []geometry.Point{{X: 4, Y: 4}, {X: 22, Y: 4}, {X: 22, Y: 18}, {X: 4, Y: 18}, {X: 4, Y: 4}},
		Style:  annotate.Style{Color: blue, Thickness: 2},
	}
	arrow := annotate.Stroke{
		Tool:   annotate.Arrow,
		Points: []geometry.Point{{X: 12, Y: 12}, {X: 28, Y: 28}},
		Style:  annotate.Style{Color: annotate.Palette[0].Color, Thickness: 2.5, Flags: annotate.FlagHead},
	}
	img := compositor.Render(base, []annotate.Stroke{frame, arrow}, nil)
	data, err := export.EncodePNG(img)
	if err != nil {
		log.Printf("tray: icon encode failed: %v", err)
		return nil
	}
	return data
}
