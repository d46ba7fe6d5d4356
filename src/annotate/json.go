package annotate

import (
	"encoding/json"
	"fmt"
	"io"

	"flint/src/geometry"
)

// strokeJSON is the interchange form read by `flint render`:
// {"tool":"arrow","points":[[x,y],...],"color":"#rrggbb","thickness":2}
type strokeJSON struct {
	Tool      string       `json:"tool"`
	Points    [][2]float64 `json:"points"`
	Color     string       `json:"color,omitempty"`
	Thickness float64      `json:"thickness,omitempty"`
}

func (s Stroke) MarshalJSON() ([]byte, error) {
	j := strokeJSON{
		Tool:      s.Tool.String(),
		Points:    make([][2]float64, len(s.Points)),
		Color:     FormatColor(s.Style.Color),
		Thickness: s.Style.Thickness,
	}
	for i, p := range s.Points {
		j.Points[i] = [2]float64{p.X, p.Y}
	}
	return json.Marshal(j)
}

func (s *Stroke) UnmarshalJSON(data []byte) error {
	var j strokeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	kind, err := ParseTool(j.Tool)
	if err != nil {
		return err
	}
	if len(j.Points) == 0 {
		return fmt.Errorf("%s stroke has no points", kind)
	}
	st := Style{Color: Palette[0].Color, Thickness: j.Thickness, Flags: DefaultFlags(kind)}
	if j.Color != "" {
		if st.Color, err = ParseColor(j.Color); err != nil {
			return err
		}
	}
	if st.Thickness <= 0 {
		st.Thickness = DefaultThickness(kind)
	}

	pts := make([]geometry.Point, len(j.Points))
	for i, p := range j.Points {
		pts[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	if !kind.Freehand() {
		// Only the anchor and the final endpoint matter.
		pts = []geometry.Point{pts[0], pts[len(pts)-1]}
	}
	*s = Stroke{Tool: kind, Points: pts, Style: st}
	return nil
}

// ReadStrokes decodes a JSON array of strokes.
func ReadStrokes(r io.Reader) ([]Stroke, error) {
	var strokes []Stroke
	if err := json.NewDecoder(r).Decode(&strokes); err != nil {
		return nil, fmt.Errorf("decode strokes: %w", err)
	}
	return strokes, nil
}
