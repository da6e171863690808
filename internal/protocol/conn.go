package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"strings"
)

// Serve accepts connections on ln and runs ServeConn for each on its own
// goroutine until ln.Accept fails (the listener was closed). Serving a
// `close` request does not stop the loop by itself: it closes Done, and
// the caller then closes ln. This matches the accept-loop shape used
// throughout the pack's own socket services (one goroutine per
// connection, no shared state beyond the Handler itself).
func (h *Handler) Serve(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go h.ServeConn(conn)
	}
}

// ServeConn reads newline-delimited Requests from conn and writes back
// one Response line per Request, in the order received, until the
// connection is closed by the client, `close` is served, or a write
// fails. Multiple connections against the same Handler interleave
// freely; requests within one connection are handled strictly
// sequentially.
func (h *Handler) ServeConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			resp := h.handleLine(line)
			if writeErr := writeResponse(conn, resp); writeErr != nil {
				return
			}
		}
		if err != nil {
			return // EOF or read error: client is gone.
		}
		select {
		case <-h.done:
			return
		default:
		}
	}
}

func writeResponse(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// Should not happen for our own Result types; fall back to an
		// error the client can still parse.
		data, _ = json.Marshal(Response{
			ID:    resp.ID,
			Error: errorObj(CodeIO, "internal: failed to encode response"),
		})
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func (h *Handler) handleLine(line string) Response {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return Response{Error: errorObj(CodeInvalidParams, "malformed request: "+err.Error())}
	}
	result, errObj := h.Dispatch(req.Method, req.Params)
	return Response{ID: req.ID, Result: result, Error: errObj}
}
