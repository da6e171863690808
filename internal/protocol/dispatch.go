package protocol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/termwright/termwright/internal/activitylog"
	"github.com/termwright/termwright/internal/screen"
	"github.com/termwright/termwright/internal/session"
)

// TermwrightVersion is reported by `handshake`.
const TermwrightVersion = "0.1.0"

// Handler dispatches one Session's daemon protocol methods. One Handler
// is shared by every connection task serving that session; Session
// itself is safe for concurrent use across connections, so Handler adds
// no locking of its own beyond the one-time `close` shutdown latch.
type Handler struct {
	Session            *session.Session
	Log                *activitylog.Logger
	DefaultWaitTimeout time.Duration
	StartedAt          time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewHandler builds a Handler over sess. A nil log is replaced with a
// no-op logger.
func NewHandler(sess *session.Session, log *activitylog.Logger, defaultWaitTimeout time.Duration) *Handler {
	if log == nil {
		log = activitylog.Nop()
	}
	if defaultWaitTimeout <= 0 {
		defaultWaitTimeout = DefaultWaitTimeoutMS * time.Millisecond
	}
	return &Handler{
		Session:            sess,
		Log:                log,
		DefaultWaitTimeout: defaultWaitTimeout,
		StartedAt:          time.Now(),
		done:               make(chan struct{}),
	}
}

// Done returns a channel closed once a `close` request has been served,
// signaling the daemon's accept loop to stop and tear down the socket.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Dispatch parses params for method and invokes it, returning the
// result payload (nil for methods with no return value) or a protocol
// error. It never panics on malformed input: decode failures become
// CodeInvalidParams.
func (h *Handler) Dispatch(method string, params json.RawMessage) (any, *ErrorObj) {
	switch method {
	case "handshake":
		return h.handshake()
	case "screen":
		return h.screen(params)
	case "screenshot":
		return nil, errorObj(CodeUnknownMethod, "screenshot is rasterized by a separate front-end, not this daemon")
	case "resize":
		return h.resize(params)
	case "status":
		return h.status()
	case "type":
		return h.typeText(params)
	case "press":
		return h.press(params)
	case "hotkey":
		return h.hotkey(params)
	case "raw":
		return h.raw(params)
	case "mouse_move":
		return h.mouseMove(params)
	case "mouse_click":
		return h.mouseClick(params)
	case "wait_for_text":
		return h.waitForText(params)
	case "wait_for_text_gone":
		return h.waitForTextGone(params)
	case "wait_for_pattern":
		return h.waitForPattern(params)
	case "wait_for_idle":
		return h.waitForIdle(params)
	case "wait_for_exit":
		return h.waitForExit(params)
	case "close":
		return h.close()
	default:
		return nil, errorObj(CodeUnknownMethod, fmt.Sprintf("unknown method %q", method))
	}
}

func parseParams[T any](params json.RawMessage) (T, *ErrorObj) {
	var p T
	if len(params) == 0 || string(params) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return p, errorObj(CodeInvalidParams, "invalid params: "+err.Error())
	}
	return p, nil
}

// HandshakeResult is the `handshake` response payload.
type HandshakeResult struct {
	ProtocolVersion   int    `json:"protocol_version"`
	TermwrightVersion string `json:"termwright_version"`
	PID               int    `json:"pid"`
}

func (h *Handler) handshake() (any, *ErrorObj) {
	return HandshakeResult{
		ProtocolVersion:   Version,
		TermwrightVersion: TermwrightVersion,
		PID:               os.Getpid(),
	}, nil
}

// ScreenParams selects the wire format for `screen`.
type ScreenParams struct {
	Format string `json:"format"`
}

func (h *Handler) screen(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[ScreenParams](params)
	if errObj != nil {
		return nil, errObj
	}
	format := p.Format
	if format == "" {
		format = "text"
	}
	switch format {
	case "text":
		return h.Session.Screen().Text(), nil
	case "json", "json_compact":
		// Both forms return the same structured object: the daemon
		// protocol already emits one compact JSON line per response, so
		// "compact" only has a distinct meaning for Screen.MarshalCompact
		// used outside this protocol (e.g. a CLI piping screen state to
		// a file).
		return h.Session.Screen().ToJSON(), nil
	default:
		return nil, errorObj(CodeInvalidParams, fmt.Sprintf("unknown screen format %q", format))
	}
}

// ResizeParams are the params for `resize`.
type ResizeParams struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (h *Handler) resize(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[ResizeParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if err := h.Session.Resize(p.Rows, p.Cols); err != nil {
		return nil, h.sessionError("resize", err)
	}
	return nil, nil
}

// StatusResult is the `status` response payload.
type StatusResult struct {
	Exited   bool `json:"exited"`
	ExitCode *int `json:"exit_code,omitempty"`
}

func (h *Handler) status() (any, *ErrorObj) {
	st := h.Session.Status()
	res := StatusResult{Exited: st.Exited}
	if st.Exited {
		code := st.ExitCode
		res.ExitCode = &code
	}
	return res, nil
}

// TypeParams are the params for `type`.
type TypeParams struct {
	Text string `json:"text"`
}

func (h *Handler) typeText(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[TypeParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if !utf8.ValidString(p.Text) {
		return nil, errorObj(CodeInvalidParams, "text is not valid UTF-8")
	}
	if err := h.Session.Type(p.Text); err != nil {
		return nil, h.sessionError("type", err)
	}
	return nil, nil
}

// PressParams are the params for `press`.
type PressParams struct {
	Key string `json:"key"`
}

func (h *Handler) press(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[PressParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if err := h.Session.Press(p.Key); err != nil {
		return nil, h.sessionError("press", err)
	}
	return nil, nil
}

// HotkeyParams are the params for `hotkey`.
type HotkeyParams struct {
	Ctrl bool   `json:"ctrl"`
	Alt  bool   `json:"alt"`
	Ch   string `json:"ch"`
}

func (h *Handler) hotkey(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[HotkeyParams](params)
	if errObj != nil {
		return nil, errObj
	}
	r, size := utf8.DecodeRuneInString(p.Ch)
	if r == utf8.RuneError || size != len(p.Ch) {
		return nil, errorObj(CodeInvalidParams, fmt.Sprintf("ch %q is not a single character", p.Ch))
	}
	if err := h.Session.Hotkey(p.Ctrl, p.Alt, r); err != nil {
		return nil, h.sessionError("hotkey", err)
	}
	return nil, nil
}

// RawParams are the params for `raw`.
type RawParams struct {
	Bytes string `json:"bytes"`
}

func (h *Handler) raw(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[RawParams](params)
	if errObj != nil {
		return nil, errObj
	}
	data, err := base64.StdEncoding.DecodeString(p.Bytes)
	if err != nil {
		return nil, errorObj(CodeInvalidParams, "bytes is not valid base64: "+err.Error())
	}
	if err := h.Session.Raw(data); err != nil {
		return nil, h.sessionError("raw", err)
	}
	return nil, nil
}

// MouseMoveParams are the params for `mouse_move`.
type MouseMoveParams struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (h *Handler) mouseMove(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[MouseMoveParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Row < 0 || p.Col < 0 {
		return nil, errorObj(CodeInvalidParams, "row and col must be >= 0")
	}
	if err := h.Session.MouseMove(p.Row, p.Col); err != nil {
		return nil, h.sessionError("mouse_move", err)
	}
	return nil, nil
}

// MouseClickParams are the params for `mouse_click`.
type MouseClickParams struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Button string `json:"button"`
}

func (h *Handler) mouseClick(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[MouseClickParams](params)
	if errObj != nil {
		return nil, errObj
	}
	if p.Row < 0 || p.Col < 0 {
		return nil, errorObj(CodeInvalidParams, "row and col must be >= 0")
	}
	if err := h.Session.MouseClick(p.Row, p.Col, p.Button); err != nil {
		return nil, h.sessionError("mouse_click", err)
	}
	return nil, nil
}

// PositionResult is the wire representation of a screen.Position.
type PositionResult struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func positionResult(pos screen.Position) *PositionResult {
	return &PositionResult{Row: pos.Row, Col: pos.Col}
}

// waitDeadline validates and converts an optional timeout_ms into a
// context, defaulting to h.DefaultWaitTimeout when ms is nil.
func (h *Handler) waitDeadline(ms *int) (context.Context, context.CancelFunc, *ErrorObj) {
	if ms == nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.DefaultWaitTimeout)
		return ctx, cancel, nil
	}
	if *ms < 0 {
		return nil, nil, errorObj(CodeInvalidParams, "timeout_ms must be >= 0")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*ms)*time.Millisecond)
	return ctx, cancel, nil
}

// WaitForTextParams are the params for `wait_for_text` and `wait_for_text_gone`.
type WaitForTextParams struct {
	Text      string `json:"text"`
	TimeoutMS *int   `json:"timeout_ms"`
}

// WaitForTextResult is the `wait_for_text` response payload.
type WaitForTextResult struct {
	Found    bool            `json:"found"`
	Position *PositionResult `json:"position,omitempty"`
}

func (h *Handler) waitForText(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[WaitForTextParams](params)
	if errObj != nil {
		return nil, errObj
	}
	ctx, cancel, errObj := h.waitDeadline(p.TimeoutMS)
	if errObj != nil {
		return nil, errObj
	}
	defer cancel()
	res, err := h.Session.WaitForText(ctx, p.Text)
	if err != nil {
		return nil, h.sessionError("wait_for_text", err)
	}
	return WaitForTextResult{Found: true, Position: positionResult(res.Position)}, nil
}

// waitForTextGone is the `wait_for_text_gone` extension method.
func (h *Handler) waitForTextGone(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[WaitForTextParams](params)
	if errObj != nil {
		return nil, errObj
	}
	ctx, cancel, errObj := h.waitDeadline(p.TimeoutMS)
	if errObj != nil {
		return nil, errObj
	}
	defer cancel()
	if _, err := h.Session.WaitForTextGone(ctx, p.Text); err != nil {
		return nil, h.sessionError("wait_for_text_gone", err)
	}
	return struct {
		Found bool `json:"found"`
	}{Found: true}, nil
}

// WaitForPatternParams are the params for `wait_for_pattern`.
type WaitForPatternParams struct {
	Pattern   string `json:"pattern"`
	TimeoutMS *int   `json:"timeout_ms"`
}

// WaitForPatternResult is the `wait_for_pattern` response payload.
type WaitForPatternResult struct {
	Found    bool            `json:"found"`
	Matched  string          `json:"matched,omitempty"`
	Position *PositionResult `json:"position,omitempty"`
}

func (h *Handler) waitForPattern(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[WaitForPatternParams](params)
	if errObj != nil {
		return nil, errObj
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return nil, errorObj(CodeInvalidParams, "invalid pattern: "+err.Error())
	}
	ctx, cancel, errObj := h.waitDeadline(p.TimeoutMS)
	if errObj != nil {
		return nil, errObj
	}
	defer cancel()
	res, err := h.Session.WaitForPattern(ctx, re)
	if err != nil {
		return nil, h.sessionError("wait_for_pattern", err)
	}
	return WaitForPatternResult{Found: true, Matched: res.Matched, Position: positionResult(res.Position)}, nil
}

// WaitForIdleParams are the params for `wait_for_idle`. Both idle_ms and
// its duration_ms alias are accepted; idle_ms wins if both are present.
type WaitForIdleParams struct {
	IdleMS     *int `json:"idle_ms"`
	DurationMS *int `json:"duration_ms"`
	TimeoutMS  *int `json:"timeout_ms"`
}

func (h *Handler) waitForIdle(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[WaitForIdleParams](params)
	if errObj != nil {
		return nil, errObj
	}
	idleMS := p.DurationMS
	if p.IdleMS != nil {
		idleMS = p.IdleMS
	}
	if idleMS == nil || *idleMS < 0 {
		return nil, errorObj(CodeInvalidParams, "idle_ms (or duration_ms) must be provided and >= 0")
	}
	ctx, cancel, errObj := h.waitDeadline(p.TimeoutMS)
	if errObj != nil {
		return nil, errObj
	}
	defer cancel()
	if _, err := h.Session.WaitForIdle(ctx, time.Duration(*idleMS)*time.Millisecond); err != nil {
		return nil, h.sessionError("wait_for_idle", err)
	}
	return nil, nil
}

// WaitForExitParams are the params for `wait_for_exit`.
type WaitForExitParams struct {
	TimeoutMS *int `json:"timeout_ms"`
}

// WaitForExitResult is the `wait_for_exit` response payload.
type WaitForExitResult struct {
	ExitCode int `json:"exit_code"`
}

func (h *Handler) waitForExit(params json.RawMessage) (any, *ErrorObj) {
	p, errObj := parseParams[WaitForExitParams](params)
	if errObj != nil {
		return nil, errObj
	}
	ctx, cancel, errObj := h.waitDeadline(p.TimeoutMS)
	if errObj != nil {
		return nil, errObj
	}
	defer cancel()
	code, err := h.Session.WaitForExit(ctx)
	if err != nil {
		return nil, h.sessionError("wait_for_exit", err)
	}
	return WaitForExitResult{ExitCode: code}, nil
}

func (h *Handler) close() (any, *ErrorObj) {
	err := h.Session.Close("client_requested")
	h.closeOnce.Do(func() { close(h.done) })
	if err != nil {
		return nil, h.sessionError("close", err)
	}
	return nil, nil
}

// sessionError maps a session-level error to its wire error object and
// records it in the activity log.
func (h *Handler) sessionError(method string, err error) *ErrorObj {
	var serr *session.Error
	var obj *ErrorObj
	if errors.As(err, &serr) {
		switch serr.Kind {
		case session.KindSpawn:
			obj = errorObj(CodeSpawn, serr.Error())
		case session.KindIO:
			obj = errorObj(CodeIO, serr.Error())
		case session.KindTimeout:
			obj = errorObj(CodeTimeout, serr.Error())
		case session.KindInvalidParams:
			obj = errorObj(CodeInvalidParams, serr.Error())
		case session.KindAlreadyExited:
			obj = errorObj(CodeAlreadyExited, serr.Error())
		case session.KindSessionClosed:
			obj = errorObj(CodeSessionClosed, serr.Error())
		default:
			obj = errorObj(CodeIO, serr.Error())
		}
	} else {
		obj = errorObj(CodeIO, err.Error())
	}
	h.Log.ProtocolError(method, obj.Code, obj.Message)
	return obj
}
