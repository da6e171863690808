package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/termwright/termwright/internal/protocol"
)

// request dials name's socket, sends a single method/params request,
// and returns its decoded response. Used by the management subcommands
// (status/list/stop), which are thin clients over the same daemon
// protocol a full automation client would speak.
func request(name, method string, params any) (protocol.Response, error) {
	path, err := socketPathFor(name)
	if err != nil {
		return protocol.Response{}, err
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("connect to %q: %w", name, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return protocol.Response{}, err
		}
		raw = b
	}
	line, err := json.Marshal(protocol.Request{ID: 1, Method: method, Params: raw})
	if err != nil {
		return protocol.Response{}, err
	}
	line = append(line, '\n')
	if _, err := conn.Write(line); err != nil {
		return protocol.Response{}, fmt.Errorf("write request: %w", err)
	}

	respLine, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal([]byte(respLine), &resp); err != nil {
		return protocol.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
