package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/termwright/termwright/internal/session"
)

func startHandler(t *testing.T, command string, args []string) *Handler {
	t.Helper()
	sess, err := session.Start(session.Options{
		Command: command,
		Args:    args,
		Rows:    24,
		Cols:    80,
	})
	if err != nil {
		t.Fatalf("session.Start: %v", err)
	}
	h := NewHandler(sess, nil, 0)
	t.Cleanup(func() { sess.Close("test_cleanup") })
	return h
}

// serve spins up a Unix socket listener backed by h and returns its
// path; the listener and every accepted connection are torn down via
// t.Cleanup.
func serve(t *testing.T, h *Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "termwright-test.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close(); os.Remove(path) })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go h.ServeConn(conn)
		}
	}()
	return path
}

func dial(t *testing.T, path string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, id uint64, method string, params any) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	req := Request{ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write request: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	respLine, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", respLine, err)
	}
	return resp
}

func TestHandshakeRoundTrip(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	resp := roundTrip(t, conn, r, 1, "handshake", nil)
	if resp.Error != nil {
		t.Fatalf("handshake error: %+v", resp.Error)
	}
	if resp.ID != 1 {
		t.Fatalf("id = %d, want 1", resp.ID)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T, want object", resp.Result)
	}
	if int(result["protocol_version"].(float64)) != Version {
		t.Fatalf("protocol_version = %v, want %d", result["protocol_version"], Version)
	}
	if result["pid"].(float64) == 0 {
		t.Fatal("pid missing or zero")
	}
}

func TestUnknownMethod(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	resp := roundTrip(t, conn, r, 2, "frobnicate", nil)
	if resp.Error == nil || resp.Error.Code != CodeUnknownMethod {
		t.Fatalf("error = %+v, want CodeUnknownMethod", resp.Error)
	}
}

func TestMalformedParamsIsInvalidParams(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	req := fmt.Sprintf(`{"id":3,"method":"press","params":{"key":42}}`)
	conn.Write([]byte(req + "\n"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v, want CodeInvalidParams", resp.Error)
	}
}

func TestMalformedJSONLine(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	conn.Write([]byte("not json at all\n"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v, want CodeInvalidParams", resp.Error)
	}
}

func TestTypePressWaitForText(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	resp := roundTrip(t, conn, r, 1, "type", TypeParams{Text: "hello"})
	if resp.Error != nil {
		t.Fatalf("type error: %+v", resp.Error)
	}
	resp = roundTrip(t, conn, r, 2, "press", PressParams{Key: "Enter"})
	if resp.Error != nil {
		t.Fatalf("press error: %+v", resp.Error)
	}

	ms := 1000
	resp = roundTrip(t, conn, r, 3, "wait_for_text", WaitForTextParams{Text: "hello", TimeoutMS: &ms})
	if resp.Error != nil {
		t.Fatalf("wait_for_text error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok || result["found"] != true {
		t.Fatalf("result = %+v, want found=true", resp.Result)
	}
}

func TestWaitForTextGone(t *testing.T) {
	h := startHandler(t, "/bin/sh", []string{"-c", "printf hello; sleep 0.1; clear"})
	path := serve(t, h)
	conn, r := dial(t, path)

	ms := 200
	resp := roundTrip(t, conn, r, 1, "wait_for_text", WaitForTextParams{Text: "hello", TimeoutMS: &ms})
	if resp.Error != nil {
		t.Fatalf("wait_for_text error: %+v", resp.Error)
	}

	ms = 2000
	resp = roundTrip(t, conn, r, 2, "wait_for_text_gone", WaitForTextParams{Text: "hello", TimeoutMS: &ms})
	if resp.Error != nil {
		t.Fatalf("wait_for_text_gone error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok || result["found"] != true {
		t.Fatalf("result = %+v, want found=true", resp.Result)
	}
}

func TestWaitForTextTimeoutIsProtocolError(t *testing.T) {
	h := startHandler(t, "/bin/sh", []string{"-c", "sleep 5"})
	path := serve(t, h)
	conn, r := dial(t, path)

	ms := 50
	resp := roundTrip(t, conn, r, 1, "wait_for_text", WaitForTextParams{Text: "never appears", TimeoutMS: &ms})
	if resp.Error == nil || resp.Error.Code != CodeTimeout {
		t.Fatalf("error = %+v, want CodeTimeout", resp.Error)
	}
}

func TestNegativeTimeoutIsInvalidParams(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	ms := -1
	resp := roundTrip(t, conn, r, 1, "wait_for_text", WaitForTextParams{Text: "x", TimeoutMS: &ms})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v, want CodeInvalidParams", resp.Error)
	}
}

func TestStatusAndClose(t *testing.T) {
	h := startHandler(t, "/bin/sh", []string{"-c", "sleep 5"})
	path := serve(t, h)
	conn, r := dial(t, path)

	resp := roundTrip(t, conn, r, 1, "status", nil)
	if resp.Error != nil {
		t.Fatalf("status error: %+v", resp.Error)
	}
	result := resp.Result.(map[string]any)
	if result["exited"] != false {
		t.Fatalf("exited = %v, want false", result["exited"])
	}

	resp = roundTrip(t, conn, r, 2, "close", nil)
	if resp.Error != nil {
		t.Fatalf("close error: %+v", resp.Error)
	}
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Handler.Done() never closed after `close`")
	}
}

func TestScreenTextAndJSON(t *testing.T) {
	h := startHandler(t, "/bin/sh", []string{"-c", "printf HELLO; sleep 5"})
	path := serve(t, h)
	conn, r := dial(t, path)

	ms := 1000
	roundTrip(t, conn, r, 1, "wait_for_idle", WaitForIdleParams{IdleMS: &ms})

	resp := roundTrip(t, conn, r, 2, "screen", ScreenParams{Format: "text"})
	text, ok := resp.Result.(string)
	if !ok {
		t.Fatalf("result = %T, want string", resp.Result)
	}
	if len(text) == 0 {
		t.Fatal("screen text is empty")
	}

	resp = roundTrip(t, conn, r, 3, "screen", ScreenParams{Format: "json"})
	if _, ok := resp.Result.(map[string]any); !ok {
		t.Fatalf("result = %T, want object", resp.Result)
	}
}

func TestResizeAndStatusSequentialOrdering(t *testing.T) {
	h := startHandler(t, "/bin/cat", nil)
	path := serve(t, h)
	conn, r := dial(t, path)

	for i := uint64(1); i <= 5; i++ {
		resp := roundTrip(t, conn, r, i, "resize", ResizeParams{Rows: 30, Cols: 100})
		if resp.Error != nil {
			t.Fatalf("resize %d error: %+v", i, resp.Error)
		}
		if resp.ID != i {
			t.Fatalf("response out of order: got id %d, want %d", resp.ID, i)
		}
	}
}
