// Package iopump drains a PTY into a VT parser, publishes a change
// notification after every chunk, and emulates the terminal-query
// responses (cursor position, OSC color queries) that a full terminal
// emulator would normally answer on the child's behalf.
package iopump

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/termenv"

	"github.com/termwright/termwright/internal/ptyhost"
	"github.com/termwright/termwright/internal/vtconsumer"
)

// writeTimeout bounds query-response writes; the child's stdin buffer is
// assumed drained since it just wrote the query that triggered this reply.
const writeTimeout = 200 * time.Millisecond

// Palette is the set of colors reported for OSC 10 (foreground), 11
// (background), and 12 (cursor) queries when the child asks "what color
// are you using?" with the OSC ...;? form.
type Palette struct {
	Fg, Bg, Cursor termenv.Color
}

// ColorToX11 converts a termenv.Color into the X11 "rgb:RRRR/GGGG/BBBB"
// format OSC replies use.
func ColorToX11(c termenv.Color) string {
	if c == nil {
		return ""
	}
	if v, ok := c.(termenv.RGBColor); ok {
		hex := string(v)
		if len(hex) == 7 && hex[0] == '#' {
			r, _ := strconv.ParseUint(hex[1:3], 16, 8)
			g, _ := strconv.ParseUint(hex[3:5], 16, 8)
			b, _ := strconv.ParseUint(hex[5:7], 16, 8)
			return fmt.Sprintf("rgb:%04x/%04x/%04x", r*0x101, g*0x101, b*0x101)
		}
	}
	rgb := termenv.ConvertToRGB(c)
	r := uint8(rgb.R*255 + 0.5)
	g := uint8(rgb.G*255 + 0.5)
	b := uint8(rgb.B*255 + 0.5)
	return fmt.Sprintf("rgb:%04x/%04x/%04x", uint16(r)*0x101, uint16(g)*0x101, uint16(b)*0x101)
}

// FallbackOSCPalette derives OSC 10/11-compatible X11 colors from
// COLORFGBG when no explicit palette is configured, defaulting to a dark
// terminal (white-on-black) when the environment is silent on the point.
func FallbackOSCPalette(colorfgbg string) (fg, bg string) {
	parts := strings.Split(strings.TrimSpace(colorfgbg), ";")
	bgDark := true
	bgField := ""
	if len(parts) >= 2 {
		bgField = strings.TrimSpace(parts[1])
	} else if len(parts) == 1 {
		bgField = strings.TrimSpace(parts[0])
	}
	if bgField != "" {
		if idx, err := strconv.Atoi(bgField); err == nil {
			bgDark = idx < 8
		}
	}
	if bgDark {
		return "rgb:ffff/ffff/ffff", "rgb:0000/0000/0000"
	}
	return "rgb:0000/0000/0000", "rgb:ffff/ffff/ffff"
}

// Policy controls how the pump answers queries it intercepts.
type Policy struct {
	// NoOSCEmulation disables cursor-position and OSC color query
	// emulation entirely, letting the query pass through unanswered (the
	// child will block or time out waiting for a reply, same as running
	// against a terminal that doesn't support these queries).
	NoOSCEmulation bool
	Palette        *Palette
}

// Pump reads a ptyhost.Host's output, feeds it to a vtconsumer.Parser,
// answers intercepted queries, and calls notify after each chunk that
// produced a revision bump (or unconditionally; notify is cheap and
// idempotent — callers compare revisions themselves).
type Pump struct {
	host   *ptyhost.Host
	parser *vtconsumer.Parser
	notify func()
	policy Policy
}

// New builds a Pump over host, feeding parser and invoking notify after
// each read chunk is applied.
func New(host *ptyhost.Host, parser *vtconsumer.Parser, notify func(), policy Policy) *Pump {
	return &Pump{host: host, parser: parser, notify: notify, policy: policy}
}

// Run reads until the PTY returns an error (typically the child exiting),
// then returns that error. It is meant to run in its own goroutine for
// the lifetime of a session.
func (p *Pump) Run() error {
	buf := make([]byte, 4096)
	for {
		n, err := p.host.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.parser.Feed(chunk)
			if !p.policy.NoOSCEmulation {
				p.respondQueries(chunk)
			}
			if p.notify != nil {
				p.notify()
			}
		}
		if err != nil {
			return err
		}
	}
}

func (p *Pump) respondQueries(data []byte) {
	if bytes.Contains(data, []byte("\x1b[6n")) {
		p.respondCursorPosition(false)
	}
	if bytes.Contains(data, []byte("\x1b[?6n")) {
		p.respondCursorPosition(true)
	}

	fg, bg, cursor := p.colors()
	if bytes.Contains(data, []byte("\x1b]10;?")) {
		p.write(fmt.Sprintf("\x1b]10;%s\x1b\\", fg))
	}
	if bytes.Contains(data, []byte("\x1b]11;?")) {
		p.write(fmt.Sprintf("\x1b]11;%s\x1b\\", bg))
	}
	if bytes.Contains(data, []byte("\x1b]12;?")) {
		p.write(fmt.Sprintf("\x1b]12;%s\x1b\\", cursor))
	}
}

func (p *Pump) respondCursorPosition(decPrivate bool) {
	row, col, _ := p.parser.Consumer().Screen().Cursor()
	if decPrivate {
		p.write(fmt.Sprintf("\x1b[?%d;%dR", row+1, col+1))
		return
	}
	p.write(fmt.Sprintf("\x1b[%d;%dR", row+1, col+1))
}

func (p *Pump) colors() (fg, bg, cursor string) {
	if p.policy.Palette != nil {
		fg, bg, cursor = ColorToX11(p.policy.Palette.Fg), ColorToX11(p.policy.Palette.Bg), ColorToX11(p.policy.Palette.Cursor)
	}
	fallbackFg, fallbackBg := FallbackOSCPalette(os.Getenv("COLORFGBG"))
	if fg == "" {
		fg = fallbackFg
	}
	if bg == "" {
		bg = fallbackBg
	}
	if cursor == "" {
		cursor = fg
	}
	return fg, bg, cursor
}

func (p *Pump) write(s string) {
	p.host.Write([]byte(s), writeTimeout)
}
