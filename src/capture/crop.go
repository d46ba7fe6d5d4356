package capture

import (
	"fmt"
	"image"

	"flint/src/geometry"
)

// Crop copies r out of src one scanline at a time. The rectangle is clamped
// against the dimensions of src itself, which may differ from the logical
// size of the display the request was made against.
func Crop(src *image.RGBA, r geometry.Rect) (*image.RGBA, error) {
	b := src.Bounds()
	c := geometry.ClampToBounds(r, b.Dx(), b.Dy())
	if c.Empty() {
		return nil, fmt.Errorf("%w: %v against %dx%d frame", ErrInvalidRegion, r, b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	rowBytes := 4 * c.Width
	for y := 0; y < c.Height; y++ {
		so := src.PixOffset(b.Min.X+c.X, b.Min.Y+c.Y+y)
		do := y * dst.Stride
		copy(dst.Pix[do:do+rowBytes], src.Pix[so:so+rowBytes])
	}
	return dst, nil
}
