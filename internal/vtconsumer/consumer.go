// Package vtconsumer is the sink half of the terminal emulator: it
// implements ansicode.Handler and turns the decoded action stream into
// mutations against an internal/screen.Screen. It owns every piece of
// state the screen grid itself does not: the scroll region, the current
// SGR template, the saved-cursor slot, the alternate screen buffer, tab
// stops, and the auto-wrap latch.
package vtconsumer

import (
	"image/color"
	"sync"

	"github.com/danielgatis/go-ansicode"
	"github.com/mattn/go-runewidth"

	"github.com/termwright/termwright/internal/screen"
)

const tabWidth = 8

// savedCursor is the DECSC/DECRC and alt-screen-swap save slot.
type savedCursor struct {
	row, col int
	template screen.Cell
	origin   bool
}

// Consumer implements ansicode.Handler against a pair of screens (primary
// and alternate), exactly one of which is active at a time. Handler
// methods are invoked from the single I/O Pump goroutine that decodes PTY
// output, while Resize and Screen are also called from other goroutines,
// so every method takes c.mu; the screen's own lock remains the
// synchronization point for screen readers.
type Consumer struct {
	mu sync.Mutex

	primary     *screen.Screen
	alternate   *screen.Screen
	altActive   bool
	rows, cols  int
	scrollTop   int
	scrollBot   int
	origin      bool
	autowrap    bool
	wrapPending bool
	tabStops    []bool
	template    screen.Cell
	saved       *savedCursor
	title       string
}

// New creates a Consumer driving a rows x cols screen pair.
func New(rows, cols int) *Consumer {
	c := &Consumer{
		primary:   screen.New(rows, cols),
		alternate: screen.New(rows, cols),
		rows:      rows,
		cols:      cols,
		scrollTop: 0,
		scrollBot: rows - 1,
		autowrap:  true,
		template:  screen.Blank(),
	}
	c.resetTabStops()
	return c
}

// Screen returns the currently active screen (primary or alternate).
func (c *Consumer) Screen() *screen.Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active()
}

func (c *Consumer) active() *screen.Screen {
	if c.altActive {
		return c.alternate
	}
	return c.primary
}

// Resize propagates a size change to both buffers, resets the scroll
// region to the full new height, and resets tab stops to the defaults for
// the new width.
func (c *Consumer) Resize(rows, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows, c.cols = rows, cols
	c.primary.Resize(rows, cols)
	c.alternate.Resize(rows, cols)
	c.scrollTop = 0
	c.scrollBot = rows - 1
	c.resetTabStops()
}

func (c *Consumer) resetTabStops() {
	c.tabStops = make([]bool, c.cols)
	for i := 0; i < c.cols; i += tabWidth {
		c.tabStops[i] = true
	}
}

func (c *Consumer) cursor() (int, int) {
	r, col, _ := c.active().Cursor()
	return r, col
}

func (c *Consumer) moveCursor(r, col int) {
	c.wrapPending = false
	c.active().MoveCursor(r, col)
}

// effectiveRow translates a row for Goto/GotoLine, honoring origin mode.
func (c *Consumer) effectiveRow(row int) int {
	if c.origin {
		return c.scrollTop + row
	}
	return row
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

// --- cursor motion ---

func (c *Consumer) Goto(row, col int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row = c.effectiveRow(row)
	c.moveCursor(clamp(row, 0, c.rows-1), clamp(col, 0, c.cols-1))
}

func (c *Consumer) GotoCol(col int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	c.moveCursor(r, clamp(col, 0, c.cols-1))
}

func (c *Consumer) GotoLine(row int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, col := c.cursor()
	row = c.effectiveRow(row)
	c.moveCursor(clamp(row, 0, c.rows-1), col)
}

func (c *Consumer) MoveUp(n int)   { c.move(-n, 0) }
func (c *Consumer) MoveDown(n int) { c.move(n, 0) }

func (c *Consumer) MoveUpCr(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	c.moveCursor(clamp(r-n, 0, c.rows-1), 0)
}

func (c *Consumer) MoveDownCr(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	c.moveCursor(clamp(r+n, 0, c.rows-1), 0)
}

func (c *Consumer) MoveForward(n int)  { c.move(0, n) }
func (c *Consumer) MoveBackward(n int) { c.move(0, -n) }

func (c *Consumer) move(dr, dc int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	c.moveCursor(clamp(r+dr, 0, c.rows-1), clamp(col+dc, 0, c.cols-1))
}

func (c *Consumer) MoveForwardTabs(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	for i := 0; i < n; i++ {
		col = c.nextTabStop(col)
	}
	c.moveCursor(r, clamp(col, 0, c.cols-1))
}

func (c *Consumer) MoveBackwardTabs(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	for i := 0; i < n; i++ {
		col = c.prevTabStop(col)
	}
	c.moveCursor(r, clamp(col, 0, c.cols-1))
}

func (c *Consumer) nextTabStop(col int) int {
	for i := col + 1; i < c.cols; i++ {
		if c.tabStops[i] {
			return i
		}
	}
	return c.cols - 1
}

func (c *Consumer) prevTabStop(col int) int {
	for i := col - 1; i >= 0; i-- {
		if c.tabStops[i] {
			return i
		}
	}
	return 0
}

func (c *Consumer) Tab(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	for i := 0; i < n; i++ {
		col = c.nextTabStop(col)
	}
	c.moveCursor(r, col)
}

func (c *Consumer) HorizontalTabSet() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, col := c.cursor()
	if col >= 0 && col < c.cols {
		c.tabStops[col] = true
	}
}

func (c *Consumer) ClearTabs(mode ansicode.TabulationClearMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch mode {
	case ansicode.TabulationClearModeCurrent:
		_, col := c.cursor()
		if col >= 0 && col < c.cols {
			c.tabStops[col] = false
		}
	case ansicode.TabulationClearModeAll:
		for i := range c.tabStops {
			c.tabStops[i] = false
		}
	}
}

func (c *Consumer) CarriageReturn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	c.moveCursor(r, 0)
}

func (c *Consumer) Backspace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	if col > 0 {
		c.moveCursor(r, col-1)
	}
}

func (c *Consumer) LineFeed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wrapPending = false
	r, _ := c.cursor()
	if r == c.scrollBot {
		c.active().ScrollUp(c.scrollTop, c.scrollBot, 1, c.template)
		return
	}
	c.active().MoveCursor(r+1, c.curCol())
}

func (c *Consumer) curCol() int {
	_, col := c.cursor()
	return col
}

func (c *Consumer) ReverseIndex() {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	if r == c.scrollTop {
		c.active().ScrollDown(c.scrollTop, c.scrollBot, 1, c.template)
		return
	}
	c.moveCursor(r-1, c.curCol())
}

// --- erase/clear ---

func (c *Consumer) ClearLine(mode ansicode.LineClearMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	switch mode {
	case ansicode.LineClearModeRight:
		c.active().ClearRange(r, col, c.cols, c.template)
	case ansicode.LineClearModeLeft:
		c.active().ClearRange(r, 0, col+1, c.template)
	case ansicode.LineClearModeAll:
		c.active().ClearRow(r, c.template)
	}
}

func (c *Consumer) ClearScreen(mode ansicode.ClearMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	s := c.active()
	switch mode {
	case ansicode.ClearModeBelow:
		s.ClearRange(r, col, c.cols, c.template)
		for row := r + 1; row < c.rows; row++ {
			s.ClearRow(row, c.template)
		}
	case ansicode.ClearModeAbove:
		for row := 0; row < r; row++ {
			s.ClearRow(row, c.template)
		}
		s.ClearRange(r, 0, col+1, c.template)
	case ansicode.ClearModeAll, ansicode.ClearModeSaved:
		for row := 0; row < c.rows; row++ {
			s.ClearRow(row, c.template)
		}
	}
}

func (c *Consumer) EraseChars(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	end := clamp(col+n, 0, c.cols)
	c.active().ClearRange(r, col, end, c.template)
}

func (c *Consumer) Decaln() {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.active()
	fill := screen.Cell{Char: 'E'}
	for r := 0; r < c.rows; r++ {
		for col := 0; col < c.cols; col++ {
			s.SetCell(r, col, fill)
		}
	}
}

func (c *Consumer) Substitute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	c.active().SetCell(r, col, c.template)
}

// --- insert/delete ---

func (c *Consumer) InsertBlank(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	c.active().InsertChars(r, col, n, c.template)
}

func (c *Consumer) DeleteChars(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, col := c.cursor()
	c.active().DeleteChars(r, col, n, c.template)
}

func (c *Consumer) InsertBlankLines(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	if r < c.scrollTop || r > c.scrollBot {
		return
	}
	c.active().InsertLines(r, c.scrollBot, n, c.template)
}

func (c *Consumer) DeleteLines(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, _ := c.cursor()
	if r < c.scrollTop || r > c.scrollBot {
		return
	}
	c.active().DeleteLines(r, c.scrollBot, n, c.template)
}

func (c *Consumer) ScrollUp(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active().ScrollUp(c.scrollTop, c.scrollBot, n, c.template)
}

func (c *Consumer) ScrollDown(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active().ScrollDown(c.scrollTop, c.scrollBot, n, c.template)
}

func (c *Consumer) SetScrollingRegion(top, bottom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	top--
	bottom--
	if top < 0 {
		top = 0
	}
	if bottom <= 0 || bottom >= c.rows {
		bottom = c.rows - 1
	}
	if top >= bottom {
		return
	}
	c.scrollTop = top
	c.scrollBot = bottom
	if c.origin {
		c.moveCursor(top, 0)
	} else {
		c.moveCursor(0, 0)
	}
}

// --- cursor save/restore, modes ---

func (c *Consumer) SaveCursorPosition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveCursorLocked()
}

func (c *Consumer) saveCursorLocked() {
	r, col := c.cursor()
	c.saved = &savedCursor{row: r, col: col, template: c.template, origin: c.origin}
}

func (c *Consumer) RestoreCursorPosition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreCursorLocked()
}

func (c *Consumer) restoreCursorLocked() {
	if c.saved == nil {
		c.moveCursor(0, 0)
		return
	}
	c.template = c.saved.template
	c.origin = c.saved.origin
	c.moveCursor(c.saved.row, c.saved.col)
}

func (c *Consumer) SetMode(mode ansicode.TerminalMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setMode(mode, true)
}

func (c *Consumer) UnsetMode(mode ansicode.TerminalMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setMode(mode, false)
}

func (c *Consumer) setMode(mode ansicode.TerminalMode, set bool) {
	switch mode {
	case ansicode.TerminalModeOrigin:
		c.origin = set
		if set {
			c.moveCursor(c.scrollTop, 0)
		}
	case ansicode.TerminalModeLineWrap:
		c.autowrap = set
	case ansicode.TerminalModeShowCursor:
		c.active().SetCursorVisible(set)
	case ansicode.TerminalModeSwapScreenAndSetRestoreCursor:
		if set == c.altActive {
			return
		}
		if set {
			c.saveCursorLocked()
			c.altActive = true
			c.active().Reset()
		} else {
			c.altActive = false
			c.restoreCursorLocked()
		}
	}
}

func (c *Consumer) ResetState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary.Reset()
	c.alternate.Reset()
	c.altActive = false
	c.scrollTop = 0
	c.scrollBot = c.rows - 1
	c.origin = false
	c.autowrap = true
	c.wrapPending = false
	c.template = screen.Blank()
	c.saved = nil
	c.resetTabStops()
}

// --- character input and SGR ---

func (c *Consumer) Input(r rune) {
	c.mu.Lock()
	defer c.mu.Unlock()

	width := runewidth.RuneWidth(r)
	if width == 0 {
		return
	}

	row, col := c.cursor()

	if c.wrapPending {
		c.wrapAndAdvanceLine(&row, &col)
		c.wrapPending = false
	}

	if col+width > c.cols {
		if c.autowrap {
			c.wrapAndAdvanceLine(&row, &col)
		} else if width == 2 {
			return
		} else {
			col = c.cols - 1
		}
	}

	cell := c.template
	cell.Char = r
	if width == 2 {
		cell.WideLead = true
	}
	writes := []screen.CellWrite{{Row: row, Col: col, Cell: cell}}
	col++
	if width == 2 && col < c.cols {
		tail := c.template
		tail.WideTail = true
		writes = append(writes, screen.CellWrite{Row: row, Col: col, Cell: tail})
		col++
	}

	if col >= c.cols {
		if c.autowrap {
			c.wrapPending = true
			col = c.cols - 1
		} else {
			col = c.cols - 1
		}
	}
	c.active().PrintCells(writes, row, col)
}

// wrapAndAdvanceLine moves to column 0 of the next row, scrolling the
// region if the cursor was already on the bottom line.
func (c *Consumer) wrapAndAdvanceLine(row, col *int) {
	if *row == c.scrollBot {
		c.active().ScrollUp(c.scrollTop, c.scrollBot, 1, c.template)
	} else {
		*row++
		c.active().MoveCursor(*row, 0)
	}
	*col = 0
}

func (c *Consumer) SetTerminalCharAttribute(attr ansicode.TerminalCharAttribute) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch attr.Attr {
	case ansicode.CharAttributeReset:
		c.template = screen.Blank()
	case ansicode.CharAttributeBold:
		c.template.Attrs |= screen.AttrBold
	case ansicode.CharAttributeItalic:
		c.template.Attrs |= screen.AttrItalic
	case ansicode.CharAttributeUnderline, ansicode.CharAttributeDoubleUnderline,
		ansicode.CharAttributeCurlyUnderline, ansicode.CharAttributeDottedUnderline,
		ansicode.CharAttributeDashedUnderline:
		c.template.Attrs |= screen.AttrUnderline
	case ansicode.CharAttributeReverse:
		c.template.Attrs |= screen.AttrInverse
	case ansicode.CharAttributeCancelBold, ansicode.CharAttributeCancelBoldDim:
		c.template.Attrs &^= screen.AttrBold
	case ansicode.CharAttributeCancelItalic:
		c.template.Attrs &^= screen.AttrItalic
	case ansicode.CharAttributeCancelUnderline:
		c.template.Attrs &^= screen.AttrUnderline
	case ansicode.CharAttributeCancelReverse:
		c.template.Attrs &^= screen.AttrInverse
	case ansicode.CharAttributeForeground:
		c.template.Fg = resolveColor(attr, screen.Default)
	case ansicode.CharAttributeBackground:
		c.template.Bg = resolveColor(attr, screen.Default)
	}
}

// resolveColor turns a TerminalCharAttribute's color payload into a
// screen.Color, falling back to dflt when no RGB/indexed/named value is set.
func resolveColor(attr ansicode.TerminalCharAttribute, dflt screen.Color) screen.Color {
	if attr.RGBColor != nil {
		return screen.RGB(attr.RGBColor.R, attr.RGBColor.G, attr.RGBColor.B)
	}
	if attr.IndexedColor != nil {
		return screen.Indexed(uint8(attr.IndexedColor.Index))
	}
	if attr.NamedColor != nil {
		v := int(*attr.NamedColor)
		if v >= 0 && v < 256 {
			return screen.Indexed(uint8(v))
		}
	}
	return dflt
}

// --- title, bell, working directory: tracked, not rendered ---

func (c *Consumer) SetTitle(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.title = title
}

// Title returns the last title set via OSC 0/1/2.
func (c *Consumer) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

func (c *Consumer) Bell()                               {}
func (c *Consumer) PopTitle()                            {}
func (c *Consumer) PushTitle()                           {}
func (c *Consumer) SetWorkingDirectory(uri string)       {}
func (c *Consumer) WorkingDirectory() string             { return "" }
func (c *Consumer) WorkingDirectoryPath() string         { return "" }
func (c *Consumer) IdentifyTerminal(b byte)              {}
func (c *Consumer) DeviceStatus(n int)                   {}
func (c *Consumer) ResetColor(i int)                     {}
func (c *Consumer) SetColor(index int, col color.Color)  {}
func (c *Consumer) SetDynamicColor(prefix string, index int, terminator string) {}
func (c *Consumer) SetCursorStyle(style ansicode.CursorStyle)                   {}
func (c *Consumer) SetKeypadApplicationMode()                                   {}
func (c *Consumer) UnsetKeypadApplicationMode()                                 {}
func (c *Consumer) TextAreaSizeChars()                                          {}
func (c *Consumer) TextAreaSizePixels()                                         {}
func (c *Consumer) CellSizePixels()                                             {}
func (c *Consumer) SetActiveCharset(n int)                                      {}
func (c *Consumer) ConfigureCharset(index ansicode.CharsetIndex, charset ansicode.Charset) {}
func (c *Consumer) SetHyperlink(hyperlink *ansicode.Hyperlink)                             {}
func (c *Consumer) SetModifyOtherKeys(modify ansicode.ModifyOtherKeys)                     {}
func (c *Consumer) ReportModifyOtherKeys()                                                 {}
func (c *Consumer) PushKeyboardMode(mode ansicode.KeyboardMode)                            {}
func (c *Consumer) PopKeyboardMode(n int)                                                  {}
func (c *Consumer) ReportKeyboardMode()                                                     {}
func (c *Consumer) SetKeyboardMode(mode ansicode.KeyboardMode, behavior ansicode.KeyboardModeBehavior) {
}
func (c *Consumer) ClipboardLoad(clipboard byte, terminator string)        {}
func (c *Consumer) ClipboardStore(clipboard byte, data []byte)             {}
func (c *Consumer) ApplicationCommandReceived(data []byte)                 {}
func (c *Consumer) PrivacyMessageReceived(data []byte)                     {}
func (c *Consumer) StartOfStringReceived(data []byte)                      {}
func (c *Consumer) SixelReceived(params [][]uint16, data []byte)           {}
func (c *Consumer) ShellIntegrationMark(mark ansicode.ShellIntegrationMark, exitCode int) {}

var _ ansicode.Handler = (*Consumer)(nil)
