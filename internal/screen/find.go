package screen

import (
	"regexp"
	"strings"
)

// Position is a (row, col) location on the grid.
type Position struct {
	Row, Col int
}

// Contains reports whether needle occurs within any single row, or in the
// row-joined text (so a match spanning rows via the LF separator is
// found too).
func Contains(text, needle string) bool {
	return strings.Contains(text, needle)
}

// FindText returns the first (row, col) where needle occurs in Text(), or
// ok=false if it does not occur anywhere.
func (s *Screen) FindText(needle string) (pos Position, ok bool) {
	return FindTextIn(s.Text(), needle)
}

// FindTextIn locates needle within row-joined text (rows separated by LF)
// and converts the byte offset back into a (row, col) pair.
func FindTextIn(text, needle string) (Position, bool) {
	idx := strings.Index(text, needle)
	if idx < 0 {
		return Position{}, false
	}
	return offsetToPosition(text, idx), true
}

// FindPattern returns the first regex match in Text() along with its
// matched substring and starting position.
func (s *Screen) FindPattern(re *regexp.Regexp) (matched string, pos Position, ok bool) {
	return FindPatternIn(s.Text(), re)
}

// FindPatternIn runs re against row-joined text and returns the first match.
func FindPatternIn(text string, re *regexp.Regexp) (string, Position, bool) {
	loc := re.FindStringIndex(text)
	if loc == nil {
		return "", Position{}, false
	}
	return text[loc[0]:loc[1]], offsetToPosition(text, loc[0]), true
}

// offsetToPosition converts a byte offset in row-joined text (rows
// separated by a single LF byte) into a (row, col) pair. Column is a byte
// offset into the row, consistent with the ASCII-oriented grid this system
// targets.
func offsetToPosition(text string, offset int) Position {
	row := 0
	col := 0
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			row++
			col = 0
		} else {
			col++
		}
	}
	return Position{Row: row, Col: col}
}
