package screen

import (
	"fmt"
	"strings"
	"sync"
)

// Screen is a rectangular grid of Cells with cursor state and a
// monotonically increasing revision counter. There is no scrollback:
// lines that scroll off the top are discarded by the caller that drives
// the grid (internal/vtconsumer).
//
// Screen is safe for concurrent use: mutation methods take a write lock
// and bump the revision exactly once; read methods take a read lock.
type Screen struct {
	mu sync.RWMutex

	rows, cols int
	grid       [][]Cell

	cursorRow, cursorCol int
	cursorVisible        bool

	revision uint64
}

// New creates a Screen of the given size, filled with blank cells.
// rows and cols are clamped to at least 1.
func New(rows, cols int) *Screen {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	s := &Screen{rows: rows, cols: cols, cursorVisible: true}
	s.grid = makeGrid(rows, cols)
	return s
}

func makeGrid(rows, cols int) [][]Cell {
	grid := make([][]Cell, rows)
	for r := range grid {
		row := make([]Cell, cols)
		for c := range row {
			row[c] = Blank()
		}
		grid[r] = row
	}
	return grid
}

// Size returns (rows, cols).
func (s *Screen) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.cols
}

// OutOfBounds is returned by Cell when (r,c) lies outside the grid.
type OutOfBounds struct {
	Row, Col, Rows, Cols int
}

func (e OutOfBounds) Error() string {
	return fmt.Sprintf("out of bounds: (%d,%d) not in %dx%d grid", e.Row, e.Col, e.Rows, e.Cols)
}

// Cell returns the cell at (r,c), or OutOfBounds if outside the grid.
func (s *Screen) Cell(r, c int) (Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r < 0 || r >= s.rows || c < 0 || c >= s.cols {
		return Cell{}, OutOfBounds{r, c, s.rows, s.cols}
	}
	return s.grid[r][c], nil
}

// Line returns row r as a string, trailing spaces retained.
func (s *Screen) Line(r int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lineLocked(r)
}

func (s *Screen) lineLocked(r int) (string, error) {
	if r < 0 || r >= s.rows {
		return "", OutOfBounds{Row: r, Rows: s.rows, Cols: s.cols}
	}
	var b strings.Builder
	for _, cell := range s.grid[r] {
		if cell.WideTail {
			continue
		}
		if cell.Char == 0 {
			b.WriteRune(' ')
		} else {
			b.WriteRune(cell.Char)
		}
	}
	return b.String(), nil
}

// Text returns the full grid as a flat string, rows joined by LF.
func (s *Screen) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]string, s.rows)
	for r := 0; r < s.rows; r++ {
		line, _ := s.lineLocked(r)
		lines[r] = line
	}
	return strings.Join(lines, "\n")
}

// Region is a sub-grid over half-open ranges [r0,r1) x [c0,c1).
type Region struct {
	Rows, Cols int
	Cells      [][]Cell
}

// RegionAt returns the sub-grid over the half-open ranges [r0,r1) x [c0,c1).
func (s *Screen) RegionAt(r0, r1, c0, c1 int) (Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r0 < 0 || c0 < 0 || r1 > s.rows || c1 > s.cols || r0 > r1 || c0 > c1 {
		return Region{}, OutOfBounds{Row: r1, Col: c1, Rows: s.rows, Cols: s.cols}
	}
	out := make([][]Cell, r1-r0)
	for i := r0; i < r1; i++ {
		row := make([]Cell, c1-c0)
		copy(row, s.grid[i][c0:c1])
		out[i-r0] = row
	}
	return Region{Rows: r1 - r0, Cols: c1 - c0, Cells: out}, nil
}

// Cursor returns (row, col, visible).
func (s *Screen) Cursor() (int, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorRow, s.cursorCol, s.cursorVisible
}

// Revision returns the current revision counter.
func (s *Screen) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// --- mutation API, called only by the single VT Consumer writer ---

// bump increments the revision counter. Callers must hold the write lock.
func (s *Screen) bump() {
	s.revision++
}

// SetCell writes a cell at (r,c) if it differs from the current value,
// bumping the revision exactly once when it does. Out-of-bounds writes are
// silently clamped away (no-op) since the VT Consumer is responsible for
// keeping coordinates sane.
func (s *Screen) SetCell(r, c int, cell Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r < 0 || r >= s.rows || c < 0 || c >= s.cols {
		return
	}
	if s.grid[r][c] == cell {
		return
	}
	s.grid[r][c] = cell
	s.bump()
}

// SetCells applies a batch of writes within a single revision bump, made
// only when some cell actually differed from its prior value.
func (s *Screen) SetCells(writes []CellWrite) {
	if len(writes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, w := range writes {
		if w.Row < 0 || w.Row >= s.rows || w.Col < 0 || w.Col >= s.cols {
			continue
		}
		if s.grid[w.Row][w.Col] == w.Cell {
			continue
		}
		s.grid[w.Row][w.Col] = w.Cell
		changed = true
	}
	if changed {
		s.bump()
	}
}

// CellWrite is one write in a SetCells batch.
type CellWrite struct {
	Row, Col int
	Cell     Cell
}

// PrintCells writes a batch of cells and moves the cursor to (cursorRow,
// cursorCol), clamped into bounds, as a single revision bump. This is
// the primitive a single Print action uses: one or two cell writes (a
// wide character's lead and tail) plus the resulting cursor advance are
// one observable state change, not three.
func (s *Screen) PrintCells(writes []CellWrite, cursorRow, cursorCol int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, w := range writes {
		if w.Row < 0 || w.Row >= s.rows || w.Col < 0 || w.Col >= s.cols {
			continue
		}
		if s.grid[w.Row][w.Col] == w.Cell {
			continue
		}
		s.grid[w.Row][w.Col] = w.Cell
		changed = true
	}
	cursorRow = clamp(cursorRow, 0, s.rows-1)
	cursorCol = clamp(cursorCol, 0, s.cols-1)
	if cursorRow != s.cursorRow || cursorCol != s.cursorCol {
		s.cursorRow, s.cursorCol = cursorRow, cursorCol
		changed = true
	}
	if changed {
		s.bump()
	}
}

// MoveCursor sets the cursor position, clamping into bounds. A move to the
// cursor's own current position is a no-op and does not bump the revision.
func (s *Screen) MoveCursor(r, c int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r = clamp(r, 0, s.rows-1)
	c = clamp(c, 0, s.cols-1)
	if r == s.cursorRow && c == s.cursorCol {
		return
	}
	s.cursorRow, s.cursorCol = r, c
	s.bump()
}

// SetCursorVisible toggles cursor visibility.
func (s *Screen) SetCursorVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursorVisible == visible {
		return
	}
	s.cursorVisible = visible
	s.bump()
}

// ClearRow blanks an entire row with the given template cell (for SGR
// background carried into erased cells) and bumps the revision if anything
// changed.
func (s *Screen) ClearRow(r int, template Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r < 0 || r >= s.rows {
		return
	}
	changed := false
	for c := 0; c < s.cols; c++ {
		if s.grid[r][c] != template {
			s.grid[r][c] = template
			changed = true
		}
	}
	if changed {
		s.bump()
	}
}

// ClearRange blanks cells [c0,c1) on row r with the given template.
func (s *Screen) ClearRange(r, c0, c1 int, template Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r < 0 || r >= s.rows {
		return
	}
	c0 = clamp(c0, 0, s.cols)
	c1 = clamp(c1, 0, s.cols)
	changed := false
	for c := c0; c < c1; c++ {
		if s.grid[r][c] != template {
			s.grid[r][c] = template
			changed = true
		}
	}
	if changed {
		s.bump()
	}
}

// ScrollUp discards the top n rows of [top,bottom] (inclusive, 0-indexed)
// and appends n blank rows at the bottom of that range, bumping the
// revision whenever n >= 1 and the range is non-empty, even if the rows
// moved were already blank. n <= 0 is a no-op with no bump.
func (s *Screen) ScrollUp(top, bottom, n int, template Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollLocked(top, bottom, n, template, true)
}

// ScrollDown is the inverse of ScrollUp: rows move down, blank rows are
// inserted at the top of the range.
func (s *Screen) ScrollDown(top, bottom, n int, template Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollLocked(top, bottom, n, template, false)
}

func (s *Screen) scrollLocked(top, bottom, n int, template Cell, up bool) {
	top = clamp(top, 0, s.rows-1)
	bottom = clamp(bottom, 0, s.rows-1)
	if top > bottom || n <= 0 {
		return
	}
	height := bottom - top + 1
	if n > height {
		n = height
	}
	if up {
		copy(s.grid[top:bottom+1-n], s.grid[top+n:bottom+1])
		for r := bottom + 1 - n; r <= bottom; r++ {
			s.grid[r] = blankRow(s.cols, template)
		}
	} else {
		copy(s.grid[top+n:bottom+1], s.grid[top:bottom+1-n])
		for r := top; r < top+n; r++ {
			s.grid[r] = blankRow(s.cols, template)
		}
	}
	s.bump()
}

func blankRow(cols int, template Cell) []Cell {
	row := make([]Cell, cols)
	for i := range row {
		row[i] = template
	}
	return row
}

// InsertLines shifts rows [r,bottom] down by n within the region,
// discarding rows pushed past bottom, and fills the opened rows at r with
// blanks.
func (s *Screen) InsertLines(r, bottom, n int, template Cell) {
	s.ScrollDown(r, bottom, n, template)
}

// DeleteLines shifts rows [r,bottom] up by n within the region, discarding
// rows at r..r+n-1, and fills the opened rows at the bottom with blanks.
func (s *Screen) DeleteLines(r, bottom, n int, template Cell) {
	s.ScrollUp(r, bottom, n, template)
}

// InsertChars shifts cells [c,cols) on row r right by n, discarding
// overflow, filling the opened cells with template.
func (s *Screen) InsertChars(r, c, n int, template Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r < 0 || r >= s.rows || n <= 0 {
		return
	}
	c = clamp(c, 0, s.cols)
	row := s.grid[r]
	if n > s.cols-c {
		n = s.cols - c
	}
	if n <= 0 {
		return
	}
	copy(row[c+n:], row[c:s.cols-n])
	for i := c; i < c+n; i++ {
		row[i] = template
	}
	s.bump()
}

// DeleteChars shifts cells [c+n,cols) on row r left by n into position c,
// filling the opened cells at the end of the row with template.
func (s *Screen) DeleteChars(r, c, n int, template Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r < 0 || r >= s.rows || n <= 0 {
		return
	}
	c = clamp(c, 0, s.cols)
	row := s.grid[r]
	if n > s.cols-c {
		n = s.cols - c
	}
	if n <= 0 {
		return
	}
	copy(row[c:], row[c+n:s.cols])
	for i := s.cols - n; i < s.cols; i++ {
		row[i] = template
	}
	s.bump()
}

// Resize changes the grid dimensions, preserving the overlap between old
// and new grids at the top-left and clamping the cursor into the new
// bounds. Always bumps the revision.
func (s *Screen) Resize(rows, cols int) {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	newGrid := makeGrid(rows, cols)
	for r := 0; r < rows && r < s.rows; r++ {
		for c := 0; c < cols && c < s.cols; c++ {
			newGrid[r][c] = s.grid[r][c]
		}
	}
	s.grid = newGrid
	s.rows, s.cols = rows, cols
	s.cursorRow = clamp(s.cursorRow, 0, rows-1)
	s.cursorCol = clamp(s.cursorCol, 0, cols-1)
	s.bump()
}

// Reset blanks every cell, homes the cursor, and shows it, bumping the
// revision exactly once.
func (s *Screen) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = makeGrid(s.rows, s.cols)
	s.cursorRow, s.cursorCol = 0, 0
	s.cursorVisible = true
	s.bump()
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Snapshot is a cheap, immutable copy of a Screen's observable state at a
// point in time. Two snapshots with equal Revision are bitwise-identical.
type Snapshot struct {
	Rows, Cols            int
	Grid                  [][]Cell
	CursorRow, CursorCol  int
	CursorVisible         bool
	Revision              uint64
}

// Snapshot takes a cheap copy of the screen usable by waiters without
// holding the screen's lock.
func (s *Screen) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grid := make([][]Cell, s.rows)
	for r := range grid {
		row := make([]Cell, s.cols)
		copy(row, s.grid[r])
		grid[r] = row
	}
	return Snapshot{
		Rows: s.rows, Cols: s.cols, Grid: grid,
		CursorRow: s.cursorRow, CursorCol: s.cursorCol, CursorVisible: s.cursorVisible,
		Revision: s.revision,
	}
}

// Text renders the snapshot's grid as a flat string, rows joined by LF,
// mirroring Screen.Text.
func (sn Snapshot) Text() string {
	lines := make([]string, sn.Rows)
	for r, row := range sn.Grid {
		var b strings.Builder
		for _, cell := range row {
			if cell.WideTail {
				continue
			}
			if cell.Char == 0 {
				b.WriteRune(' ')
			} else {
				b.WriteRune(cell.Char)
			}
		}
		lines[r] = b.String()
	}
	return strings.Join(lines, "\n")
}

// Line returns row r of the snapshot.
func (sn Snapshot) Line(r int) (string, error) {
	if r < 0 || r >= sn.Rows {
		return "", OutOfBounds{Row: r, Rows: sn.Rows, Cols: sn.Cols}
	}
	lines := strings.Split(sn.Text(), "\n")
	return lines[r], nil
}
