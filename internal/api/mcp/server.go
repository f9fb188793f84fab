package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scrypster/engram/internal/engine"
)

const (
	serverName      = "engram"
	serverVersion   = "0.1.0"
	protocolVersion = "2024-11-05"
)

// errInvalidParams marks request parameters that failed to decode, so the
// dispatcher answers with the invalid-params code instead of a generic
// server error.
var errInvalidParams = errors.New("invalid params")

// Server exposes the memory engine as MCP tools. It speaks JSON-RPC 2.0:
// the standard MCP methods (initialize, ping, tools/list, tools/call) are
// handled here, and every tool call maps one-to-one onto an engine
// operation. Tool results are XML-tagged text with user content escaped.
type Server struct {
	engine    *engine.Engine
	logger    *slog.Logger
	sessionID string // generated once per server lifetime
}

// NewServer creates an MCP server bound to the given engine.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	s := &Server{
		engine:    eng,
		logger:    logger.With("component", "mcp"),
		sessionID: uuid.New().String(),
	}
	s.logger.Info("mcp server created", "session_id", s.sessionID)
	return s
}

// SessionID returns the identifier generated for this server instance.
func (s *Server) SessionID() string {
	return s.sessionID
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. A nil response with a nil error means the request was a
// notification and no frame should be written.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "parse error", err.Error())
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC version", nil)
	}

	// Requests without an id are notifications and never get a response.
	if req.ID == nil {
		s.logger.Debug("notification received", "method", req.Method)
		return nil, nil
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}

	if err != nil {
		if errors.Is(err, errInvalidParams) {
			return s.errorResponse(req.ID, ErrCodeInvalidParams, err.Error(), nil)
		}
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}

	return s.successResponse(req.ID, result)
}

// handleInitialize answers the MCP handshake.
func (s *Server) handleInitialize(_ context.Context, params interface{}) (interface{}, error) {
	var p MCPInitializeParams
	if err := s.unmarshalParams(params, &p); err == nil && p.ClientInfo.Name != "" {
		s.logger.Info("client connected",
			"client", p.ClientInfo.Name,
			"client_version", p.ClientInfo.Version)
	}
	return MCPInitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools: &MCPToolsCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	}, nil
}

// handleToolsList returns the definitions of all exposed tools.
func (s *Server) handleToolsList(_ context.Context, _ interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request. Tool-level failures are
// reported inside the result envelope with isError set, not as protocol
// errors; only malformed params reach the JSON-RPC error path.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	text, err := s.callTool(ctx, p.Name, p.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", "tool", p.Name, "error", err)
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: text}},
	}, nil
}

// unmarshalParams round-trips JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

// successResponse encodes a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

// errorResponse encodes a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	})
}
