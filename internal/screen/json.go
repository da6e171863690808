package screen

import (
	"encoding/json"
	"fmt"
)

// ColorJSON is the wire representation of Color: {"type":"default"},
// {"type":"indexed","value":N}, or {"type":"rgb","r":R,"g":G,"b":B}.
type ColorJSON struct {
	Type  string `json:"type"`
	Value uint8  `json:"value"`
	R     uint8  `json:"r"`
	G     uint8  `json:"g"`
	B     uint8  `json:"b"`
}

// MarshalJSON writes only the keys that belong to cj.Type, giving the
// three wire forms listed above.
func (cj ColorJSON) MarshalJSON() ([]byte, error) {
	switch cj.Type {
	case "indexed":
		return []byte(fmt.Sprintf(`{"type":"indexed","value":%d}`, cj.Value)), nil
	case "rgb":
		return []byte(fmt.Sprintf(`{"type":"rgb","r":%d,"g":%d,"b":%d}`, cj.R, cj.G, cj.B)), nil
	default:
		return []byte(`{"type":"default"}`), nil
	}
}

func colorToJSON(c Color) ColorJSON {
	switch c.Kind {
	case ColorIndexed:
		return ColorJSON{Type: "indexed", Value: c.Index}
	case ColorRGB:
		return ColorJSON{Type: "rgb", R: c.R, G: c.G, B: c.B}
	default:
		return ColorJSON{Type: "default"}
	}
}

func (cj ColorJSON) toColor() Color {
	switch cj.Type {
	case "indexed":
		return Indexed(cj.Value)
	case "rgb":
		return RGB(cj.R, cj.G, cj.B)
	default:
		return Default
	}
}

// CellJSON is the wire representation of a Cell.
type CellJSON struct {
	Char      string    `json:"char"`
	Fg        ColorJSON `json:"fg"`
	Bg        ColorJSON `json:"bg"`
	Bold      bool      `json:"bold"`
	Italic    bool      `json:"italic"`
	Underline bool      `json:"underline"`
	Inverse   bool      `json:"inverse"`
}

func cellToJSON(c Cell) CellJSON {
	ch := string(c.Char)
	if c.Char == 0 || c.WideTail {
		ch = ""
	}
	return CellJSON{
		Char:      ch,
		Fg:        colorToJSON(c.Fg),
		Bg:        colorToJSON(c.Bg),
		Bold:      c.Has(AttrBold),
		Italic:    c.Has(AttrItalic),
		Underline: c.Has(AttrUnderline),
		Inverse:   c.Has(AttrInverse),
	}
}

func (cj CellJSON) toCell() Cell {
	r := rune(' ')
	for _, ru := range cj.Char {
		r = ru
		break
	}
	c := Cell{Char: r, Fg: cj.Fg.toColor(), Bg: cj.Bg.toColor()}
	c = c.with(AttrBold, cj.Bold)
	c = c.with(AttrItalic, cj.Italic)
	c = c.with(AttrUnderline, cj.Underline)
	c = c.with(AttrInverse, cj.Inverse)
	return c
}

// JSON is the wire representation of a Screen.
type JSON struct {
	Size struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	} `json:"size"`
	Cursor struct {
		Row int `json:"row"`
		Col int `json:"col"`
	} `json:"cursor"`
	Cells [][]CellJSON `json:"cells"`
}

// ToJSON builds the wire representation of the current screen state.
func (s *Screen) ToJSON() JSON {
	snap := s.Snapshot()
	return snapshotToJSON(snap)
}

func snapshotToJSON(snap Snapshot) JSON {
	var j JSON
	j.Size.Cols = snap.Cols
	j.Size.Rows = snap.Rows
	j.Cursor.Row = snap.CursorRow
	j.Cursor.Col = snap.CursorCol
	j.Cells = make([][]CellJSON, snap.Rows)
	for r, row := range snap.Grid {
		cells := make([]CellJSON, len(row))
		for c, cell := range row {
			cells[c] = cellToJSON(cell)
		}
		j.Cells[r] = cells
	}
	return j
}

// Marshal renders the screen as indented JSON. The daemon protocol's
// `screen` method does not call it: for both `json` and `json_compact` it
// returns ToJSON's value inside its one-line response.
func (s *Screen) Marshal() ([]byte, error) {
	return json.MarshalIndent(s.ToJSON(), "", "  ")
}

// MarshalCompact renders the screen as JSON with no whitespace outside
// string values.
func (s *Screen) MarshalCompact() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}

// FromSnapshot converts a snapshot directly to the wire JSON struct,
// letting callers avoid a redundant Screen round-trip.
func FromSnapshot(snap Snapshot) JSON {
	return snapshotToJSON(snap)
}

// ToScreen reconstructs a Screen from its JSON wire representation. Used by
// round-trip tests.
func (j JSON) ToScreen() *Screen {
	s := New(j.Size.Rows, j.Size.Cols)
	for r, row := range j.Cells {
		for c, cj := range row {
			s.grid[r][c] = cj.toCell()
		}
	}
	s.cursorRow = j.Cursor.Row
	s.cursorCol = j.Cursor.Col
	return s
}
