// Package activitylog writes one JSON object per line recording a
// session's lifecycle: spawn, resize, exit, close, and protocol errors
// surfaced to daemon clients. It exists for post-mortem debugging of
// automated sessions that have no human watching the PTY live.
package activitylog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger appends JSONL events to a file. A disabled Logger (or one
// built with Nop) accepts every call as a no-op, so callers never need
// to branch on whether logging is turned on.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	enabled   bool
	sessionID string
	command   string
}

// New opens path and returns a Logger that appends to it, unless
// enabled is false, in which case no file is created and every method
// is a no-op. command is the child command the session was spawned
// with; it is attached to every event so a multi-session log can be
// filtered by it.
func New(enabled bool, path, sessionID, command string) *Logger {
	if !enabled {
		return &Logger{enabled: false}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return &Logger{enabled: false}
	}
	return &Logger{enabled: true, file: f, sessionID: sessionID, command: command}
}

// Nop returns a Logger that discards every event, for callers (such as
// one-off CLI invocations) that never want a log file at all.
func Nop() *Logger {
	return &Logger{enabled: false}
}

type entry struct {
	Timestamp string `json:"ts"`
	SessionID string `json:"session_id"`
	Command   string `json:"command,omitempty"`
	Event     string `json:"event"`

	Args       []string `json:"args,omitempty"`
	Rows       int      `json:"rows,omitempty"`
	Cols       int      `json:"cols,omitempty"`
	ExitCode   int      `json:"exit_code,omitempty"`
	Abnormal   bool     `json:"abnormal,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Method     string   `json:"method,omitempty"`
	Code       int      `json:"code,omitempty"`
	Message    string   `json:"message,omitempty"`
}

func (l *Logger) write(e entry) {
	if !l.enabled {
		return
	}
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	e.SessionID = l.sessionID
	e.Command = l.command

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	data = append(data, '\n')
	l.file.Write(data)
}

// Spawn records that the child process was started under a PTY of the
// given size.
func (l *Logger) Spawn(args []string, rows, cols int) {
	l.write(entry{Event: "spawn", Args: args, Rows: rows, Cols: cols})
}

// Resize records a `resize` request taking effect.
func (l *Logger) Resize(rows, cols int) {
	l.write(entry{Event: "resize", Rows: rows, Cols: cols})
}

// Exit records the child process terminating, distinguishing a normal
// exit(code) from an abnormal one caused by a fatal PTY I/O error.
func (l *Logger) Exit(exitCode int, abnormal bool) {
	l.write(entry{Event: "exit", ExitCode: exitCode, Abnormal: abnormal})
}

// Closed records the session transitioning to closed, with a reason
// such as "client_requested" or "session_closed_waiters_cancelled".
func (l *Logger) Closed(reason string) {
	l.write(entry{Event: "close", Reason: reason})
}

// ProtocolError records a daemon request that returned a protocol-level
// error (InvalidParams, UnknownMethod, Timeout, …) to a client.
func (l *Logger) ProtocolError(method string, code int, message string) {
	l.write(entry{Event: "protocol_error", Method: method, Code: code, Message: message})
}

// Close closes the underlying log file. Safe to call on a disabled or
// Nop Logger.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || l.file == nil {
		return nil
	}
	return l.file.Close()
}
