package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// maxLineBytes bounds a single request line. Tool arguments can carry large
// content payloads, well past the bufio default of 64 KiB.
const maxLineBytes = 4 * 1024 * 1024

// StdioTransport reads line-delimited JSON-RPC requests and writes one
// response frame per request. Only protocol frames touch the output stream;
// all diagnostics go through the slog handler, which must not share it.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// NewStdioTransport wraps a server with a line-delimited transport.
// For production use, in is os.Stdin and out is os.Stdout.
func NewStdioTransport(server *Server, in io.Reader, out io.Writer, logger *slog.Logger) *StdioTransport {
	return &StdioTransport{
		server: server,
		in:     in,
		out:    out,
		logger: logger.With("component", "transport"),
	}
}

// Serve processes requests until the input stream ends or the context is
// canceled. Requests are handled one at a time, in arrival order.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	t.logger.Info("listening on stdio")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			t.logger.Info("input stream closed")
			return nil
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		resp, err := t.server.HandleRequest(ctx, line)
		if err != nil {
			t.logger.Error("request handling failed", "error", err)
			resp = t.internalError(line)
		}
		// Notifications produce no frame.
		if len(resp) == 0 {
			continue
		}

		if _, err := t.out.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// internalError builds a last-resort error frame, recovering the request id
// when the line parses far enough to expose one.
func (t *StdioTransport) internalError(line []byte) []byte {
	var probe struct {
		ID interface{} `json:"id"`
	}
	_ = json.Unmarshal(line, &probe)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: ErrCodeInternalError, Message: "internal error"},
		ID:      probe.ID,
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
