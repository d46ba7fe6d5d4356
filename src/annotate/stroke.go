package annotate

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"flint/src/geometry"
)

// ToolKind identifies how a stroke is built and painted.
type ToolKind int

const (
	Pencil ToolKind = iota
	Line
	Arrow
	Highlighter
)

func (k ToolKind) String() string {
	switch k {
	case Pencil:
		return "pencil"
	case Line:
		return "line"
	case Arrow:
		return "arrow"
	case Highlighter:
		return "highlighter"
	default:
		return fmt.Sprintf("tool(%d)", int(k))
	}
}

// Freehand reports whether the tool records the full sampled path. Other
// tools keep only two anchors.
func (k ToolKind) Freehand() bool { return k == Pencil || k == Highlighter }

// ParseTool maps a tool name to a ToolKind.
func ParseTool(s string) (ToolKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pencil", "pen":
		return Pencil, nil
	case "line":
		return Line, nil
	case "arrow":
		return Arrow, nil
	case "highlighter", "highlight", "marker":
		return Highlighter, nil
	}
	return Pencil, fmt.Errorf("unknown tool %q", s)
}

// StyleFlags modify how a stroke is painted.
type StyleFlags uint8

const (
	// FlagTranslucent paints at HighlighterOpacity.
	FlagTranslucent StyleFlags = 1 << iota
	// FlagHead adds a filled arrowhead at the last point.
	FlagHead
)

// Style is the paint applied to one stroke. Color is not premultiplied.
type Style struct {
	Color     color.NRGBA
	Thickness float64
	Flags     StyleFlags
}

// Stroke is one annotation in image-pixel coordinates. Line and Arrow
// strokes hold exactly two points.
type Stroke struct {
	Tool   ToolKind
	Points []geometry.Point
	Style  Style
}

// Clone returns a deep copy of s.
func (s Stroke) Clone() Stroke {
	c := s
	c.Points = append([]geometry.Point(nil), s.Points...)
	return c
}

// HighlighterOpacity is the fixed coverage of highlighter paint.
const HighlighterOpacity = 0.3

// Translucent reports whether s is painted at HighlighterOpacity.
func (s Stroke) Translucent() bool {
	return s.Tool == Highlighter || s.Style.Flags&FlagTranslucent != 0
}

// DefaultThickness is the width a tool starts with when selected.
func DefaultThickness(k ToolKind) float64 {
	switch k {
	case Line, Arrow:
		return 2
	case Highlighter:
		return 8
	default:
		return 3
	}
}

// DefaultFlags are the style flags implied by a tool.
func DefaultFlags(k ToolKind) StyleFlags {
	switch k {
	case Arrow:
		return FlagHead
	case Highlighter:
		return FlagTranslucent
	}
	return 0
}

// PaletteColor is one entry of the predefined palette.
type PaletteColor struct {
	Name  string
	Color color.NRGBA
}

// Palette is the predefined color set, in key order 1..8.
var Palette = []PaletteColor{
	{"red", color.NRGBA{R: 255, A: 255}},
	{"green", color.NRGBA{G: 255, A: 255}},
	{"blue", color.NRGBA{B: 255, A: 255}},
	{"yellow", color.NRGBA{R: 255, G: 255, A: 255}},
	{"magenta", color.NRGBA{R: 255, B: 255, A: 255}},
	{"cyan", color.NRGBA{G: 255, B: 255, A: 255}},
	{"black", color.NRGBA{A: 255}},
	{"white", color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
}

// ThicknessOptions are the widths offered by the thickness control.
var ThicknessOptions = []float64{1, 3, 5, 8, 12}

// StepThickness moves to the next (dir > 0) or previous (dir < 0) option
// relative to cur, staying at the ends.
func StepThickness(cur float64, dir int) float64 {
	if dir > 0 {
		for _, t := range ThicknessOptions {
			if t > cur {
				return t
			}
		}
		return ThicknessOptions[len(ThicknessOptions)-1]
	}
	for i := len(ThicknessOptions) - 1; i >= 0; i-- {
		if ThicknessOptions[i] < cur {
			return ThicknessOptions[i]
		}
	}
	return ThicknessOptions[0]
}

// ParseColor accepts a palette name, #RRGGBB or #RRGGBBAA.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Palette {
		if p.Name == s {
			return p.Color, nil
		}
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// FormatColor renders c as #rrggbb, or #rrggbbaa when not opaque.
func FormatColor(c color.NRGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// Settings is the current tool selection of an editing session.
type Settings struct {
	Tool      ToolKind
	Color     color.NRGBA
	Thickness float64
}

// DefaultSettings starts with the red pencil.
func DefaultSettings() Settings {
	return Settings{Tool: Pencil, Color: Palette[0].Color, Thickness: DefaultThickness(Pencil)}
}

// SelectTool switches tools and resets thickness to the tool default.
func (s *Settings) SelectTool(k ToolKind) {
	s.Tool = k
	s.Thickness = DefaultThickness(k)
}

// Style returns the style a new stroke is begun with.
func (s Settings) Style() Style {
	t := s.Thickness
	if t <= 0 {
		t = DefaultThickness(s.Tool)
	}
	return Style{Color: s.Color, Thickness: t, Flags: DefaultFlags(s.Tool)}
}
