package screen

// Rect is an axis-aligned rectangle whose border is drawn with
// box-drawing glyphs. Corners are inclusive grid coordinates.
type Rect struct {
	Top, Left, Bottom, Right int
}

var topLeftCorners = runeSet('┌', '╒', '╓', '╔')
var topRightCorners = runeSet('┐', '╕', '╖', '╗')
var bottomLeftCorners = runeSet('└', '╘', '╙', '╚')
var bottomRightCorners = runeSet('┘', '╛', '╜', '╝')
var horizontalGlyphs = runeSet('─', '━', '═', '┄', '┅', '┈', '┉')
var verticalGlyphs = runeSet('│', '┃', '║', '┆', '┇', '┊', '┋')

func runeSet(rs ...rune) map[rune]bool {
	m := make(map[rune]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

// isBoxDrawing reports whether r falls in the Unicode box-drawing block,
// U+2500..U+257F.
func isBoxDrawing(r rune) bool {
	return r >= 0x2500 && r <= 0x257F
}

// DetectBoxes returns every axis-aligned rectangle on the screen whose four
// corners and four edges are continuously drawn with box-drawing glyphs.
// Overlapping or nested boxes are each reported independently.
func (s *Screen) DetectBoxes() []Rect {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return detectBoxes(s.grid, s.rows, s.cols)
}

func detectBoxes(grid [][]Cell, rows, cols int) []Rect {
	var rects []Rect
	for top := 0; top < rows; top++ {
		for left := 0; left < cols; left++ {
			if !topLeftCorners[grid[top][left].Char] {
				continue
			}
			for bottom := top + 2; bottom < rows; bottom++ {
				if !bottomLeftCorners[grid[bottom][left].Char] {
					continue
				}
				for right := left + 2; right < cols; right++ {
					if !topRightCorners[grid[top][right].Char] {
						continue
					}
					if !bottomRightCorners[grid[bottom][right].Char] {
						continue
					}
					if isBox(grid, top, left, bottom, right) {
						rects = append(rects, Rect{Top: top, Left: left, Bottom: bottom, Right: right})
					}
				}
			}
		}
	}
	return rects
}

func isBox(grid [][]Cell, top, left, bottom, right int) bool {
	for c := left + 1; c < right; c++ {
		if !horizontalGlyphs[grid[top][c].Char] || !horizontalGlyphs[grid[bottom][c].Char] {
			return false
		}
	}
	for r := top + 1; r < bottom; r++ {
		if !verticalGlyphs[grid[r][left].Char] || !verticalGlyphs[grid[r][right].Char] {
			return false
		}
	}
	return true
}
