// Package session ties the PTY host, VT parser/consumer, I/O pump, and
// waiter broadcaster into a Session: the owner of one PTY pair, one
// child process, one Screen, and one background I/O Pump, exposed to
// the daemon protocol layer as a small set of write/query/wait methods.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termwright/termwright/internal/activitylog"
	"github.com/termwright/termwright/internal/iopump"
	"github.com/termwright/termwright/internal/ptyhost"
	"github.com/termwright/termwright/internal/screen"
	"github.com/termwright/termwright/internal/vtconsumer"
	"github.com/termwright/termwright/internal/waiter"
)

// State is a Session's lifecycle stage: starting -> running ->
// exited(code) or killed.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Kind classifies a Session-level error so callers can branch on the
// failure category without string-matching an error message.
type Kind string

const (
	KindSpawn         Kind = "spawn"
	KindIO            Kind = "io"
	KindTimeout       Kind = "timeout"
	KindAlreadyExited Kind = "already_exited"
	KindInvalidParams Kind = "invalid_params"
	KindSessionClosed Kind = "session_closed"
)

// Error wraps a Session-level failure with the error kind clients need to
// branch on (InvalidParams vs Timeout vs AlreadyExited, …).
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func invalidParams(format string, args ...any) error {
	return &Error{Kind: KindInvalidParams, Err: fmt.Errorf(format, args...)}
}

// Options configures a new Session.
type Options struct {
	Command string
	Args    []string
	Rows    int
	Cols    int

	EnvPolicy ptyhost.EnvPolicy
	IOPolicy  iopump.Policy

	WriteTimeout time.Duration
	KillGrace    time.Duration

	ActivityLog *activitylog.Logger
}

// Session owns exactly one PTY pair, one child process, one Screen, and
// one I/O Pump task.
type Session struct {
	ID      string
	Command string
	Args    []string

	host   *ptyhost.Host
	parser *vtconsumer.Parser
	pump   *iopump.Pump
	bcast  *waiter.Broadcaster
	log    *activitylog.Logger

	writeTimeout time.Duration
	killGrace    time.Duration

	writeMu sync.Mutex // serializes PTY writes: type/press/raw/mouse in submission order

	mu       sync.Mutex
	state    State
	exitCode int
	killed   bool
	closed   bool

	exitCh   chan struct{} // closed exactly once, on transition to exited/killed
	pumpDone chan struct{} // closed once the I/O pump's Run loop returns
}

// Start spawns command under a PTY of the given size and begins pumping
// its output into the screen model. The returned Session is already in
// StateRunning.
func Start(opts Options) (*Session, error) {
	if opts.Rows < 1 {
		opts.Rows = 24
	}
	if opts.Cols < 1 {
		opts.Cols = 80
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 3 * time.Second
	}
	log := opts.ActivityLog
	if log == nil {
		log = activitylog.Nop()
	}

	host, err := ptyhost.Spawn(opts.Command, opts.Args, opts.Rows, opts.Cols, opts.EnvPolicy)
	if err != nil {
		return nil, &Error{Kind: KindSpawn, Err: err}
	}

	consumer := vtconsumer.New(opts.Rows, opts.Cols)
	parser := vtconsumer.NewParser(consumer)
	bcast := waiter.NewBroadcaster()

	sess := &Session{
		ID:           uuid.NewString(),
		Command:      opts.Command,
		Args:         opts.Args,
		host:         host,
		parser:       parser,
		bcast:        bcast,
		log:          log,
		writeTimeout: opts.WriteTimeout,
		killGrace:    opts.KillGrace,
		state:        StateRunning,
		exitCh:       make(chan struct{}),
		pumpDone:     make(chan struct{}),
	}
	sess.pump = iopump.New(host, parser, bcast.Publish, opts.IOPolicy)

	log.Spawn(opts.Args, opts.Rows, opts.Cols)

	go sess.runPump()
	go sess.awaitExit()

	return sess, nil
}

func (s *Session) runPump() {
	s.pump.Run()
	close(s.pumpDone)
}

func (s *Session) awaitExit() {
	code, waitErr := s.host.Wait()
	s.mu.Lock()
	killed := s.killed
	if s.state != StateExited && s.state != StateKilled {
		if killed {
			s.state = StateKilled
		} else {
			s.state = StateExited
		}
		s.exitCode = code
	}
	s.mu.Unlock()
	s.log.Exit(code, waitErr != nil)
	close(s.exitCh)
	s.bcast.Publish()
}

// Screen returns the currently active screen (primary or alternate
// buffer). Callers needing a stable view across a long operation should
// take a Snapshot immediately.
func (s *Session) Screen() *screen.Screen {
	return s.parser.Consumer().Screen()
}

// Status is the response payload for the `status` protocol method.
type Status struct {
	Exited   bool
	ExitCode int
}

// Status reports whether the child has exited and its exit code.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExited || s.state == StateKilled {
		return Status{Exited: true, ExitCode: s.exitCode}
	}
	return Status{}
}

func (s *Session) checkWritable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &Error{Kind: KindSessionClosed}
	}
	if s.state == StateExited || s.state == StateKilled {
		return &Error{Kind: KindAlreadyExited}
	}
	return nil
}

// writeSerialized sends p to the child's stdin, serialized against every
// other write-producing method so that a `type` followed by `press
// Enter` from the same client is never interleaved with another
// client's input.
func (s *Session) writeSerialized(p []byte) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.host.Write(p, s.writeTimeout); err != nil {
		return &Error{Kind: KindIO, Err: err}
	}
	return nil
}

// Type sends text to the child's stdin verbatim, UTF-8 encoded.
func (s *Session) Type(text string) error {
	return s.writeSerialized([]byte(text))
}

// Press sends the xterm byte sequence for a named key or single Unicode
// scalar.
func (s *Session) Press(key string) error {
	seq, err := EncodeKey(key)
	if err != nil {
		return invalidParams("%w", err)
	}
	return s.writeSerialized(seq)
}

// Hotkey sends a ctrl/alt single-character combination.
func (s *Session) Hotkey(ctrl, alt bool, ch rune) error {
	seq, err := EncodeHotkey(ctrl, alt, ch)
	if err != nil {
		return invalidParams("%w", err)
	}
	return s.writeSerialized(seq)
}

// Raw sends bytes to the child's stdin verbatim.
func (s *Session) Raw(data []byte) error {
	return s.writeSerialized(data)
}

// MouseMove sends a best-effort SGR mouse-motion report at (row, col).
func (s *Session) MouseMove(row, col int) error {
	return s.writeSerialized(EncodeMouseMove(row, col))
}

// MouseClick sends an SGR press+release pair for button at (row, col).
func (s *Session) MouseClick(row, col int, button string) error {
	seq, err := EncodeMouseClick(row, col, button)
	if err != nil {
		return invalidParams("%w", err)
	}
	return s.writeSerialized(seq)
}

// Resize changes the PTY window size and the screen grid to match,
// delivering SIGWINCH to the child.
func (s *Session) Resize(rows, cols int) error {
	if rows < 1 || cols < 1 {
		return invalidParams("rows and cols must be >= 1, got %dx%d", rows, cols)
	}
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.parser.Consumer().Resize(rows, cols)
	if err := s.host.Resize(rows, cols); err != nil {
		return &Error{Kind: KindIO, Err: err}
	}
	s.log.Resize(rows, cols)
	s.bcast.Publish()
	return nil
}

func mapWaitErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, waiter.ErrTimeout):
		return &Error{Kind: KindTimeout}
	case errors.Is(err, waiter.ErrSessionClosed):
		return &Error{Kind: KindSessionClosed}
	default:
		return err
	}
}

// WaitForText blocks until text appears anywhere on screen (row-joined),
// ctx is cancelled, or its deadline expires.
func (s *Session) WaitForText(ctx context.Context, text string) (waiter.Result, error) {
	res, err := waiter.Wait(ctx, s.Screen(), s.bcast, waiter.TextPredicate(text))
	return res, mapWaitErr(err)
}

// WaitForTextGone blocks until text is no longer present on screen.
func (s *Session) WaitForTextGone(ctx context.Context, text string) (waiter.Result, error) {
	res, err := waiter.Wait(ctx, s.Screen(), s.bcast, waiter.TextGonePredicate(text))
	return res, mapWaitErr(err)
}

// WaitForPattern blocks until re matches the row-joined screen text.
func (s *Session) WaitForPattern(ctx context.Context, re *regexp.Regexp) (waiter.Result, error) {
	res, err := waiter.Wait(ctx, s.Screen(), s.bcast, waiter.PatternPredicate(re))
	return res, mapWaitErr(err)
}

// WaitForIdle blocks until the screen has not changed for at least d.
func (s *Session) WaitForIdle(ctx context.Context, d time.Duration) (waiter.Result, error) {
	res, err := waiter.IdleWait(ctx, s.Screen(), s.bcast, d)
	return res, mapWaitErr(err)
}

// WaitForExit blocks until the child exits, ctx is cancelled, or its
// deadline expires.
func (s *Session) WaitForExit(ctx context.Context) (int, error) {
	select {
	case <-s.exitCh:
		return s.Status().ExitCode, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, &Error{Kind: KindTimeout}
		}
		return 0, ctx.Err()
	}
}

// Close kills the child, cancels every outstanding waiter with
// SessionClosed, and releases the PTY. Safe to call more than once;
// calls after the first are no-ops. reason is recorded in the activity
// log (e.g. "client_requested").
func (s *Session) Close(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.killed = true
	s.mu.Unlock()

	s.host.Kill(s.killGrace)
	s.host.Close()
	s.bcast.Close()
	s.log.Closed(reason)
	s.log.Close()
	return nil
}
