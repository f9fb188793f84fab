package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/api/mcp"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/embedding/mock"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage/sqlite"
	"github.com/scrypster/engram/internal/vector"
)

const testDims = 32

// newTestServer builds an MCP server over a real engine backed by in-memory
// stores and the deterministic mock embedder.
func newTestServer(t *testing.T, gen llm.TextGenerator) *mcp.Server {
	t.Helper()

	cfg := &config.Config{
		DataDir:               "unused",
		DecayRate:             0.995,
		ReflectionThreshold:   150,
		ConsolidationInterval: 24 * time.Hour,
		WeightRecency:         0.4,
		WeightImportance:      0.3,
		WeightRelevance:       0.3,
		EmbeddingModel:        "mock",
		EmbeddingDimensions:   testDims,
		LogLevel:              "error",
	}

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vectors, err := vector.OpenInMemory(testDims)
	require.NoError(t, err)

	eng, err := engine.New(cfg, store, vectors, mock.New(testDims), gen, discardLogger())
	require.NoError(t, err)

	return mcp.NewServer(eng, discardLogger())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticLLM is a canned TextGenerator covering the three prompt shapes the
// engine issues: importance scoring, salient questions, and insights.
type staticLLM struct{}

func (staticLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Rate the long-term importance"):
		return "0.8", nil
	case strings.Contains(prompt, "most salient high-level questions"):
		return "What is the user building?", nil
	case strings.Contains(prompt, "Question:"):
		return "The user is building a billing service in Go.", nil
	default:
		return "", nil
	}
}

func (staticLLM) GetModel() string { return "static" }

// rpc sends one raw JSON-RPC request and decodes the response envelope.
func rpc(t *testing.T, srv *mcp.Server, raw string) map[string]interface{} {
	t.Helper()
	resp, err := srv.HandleRequest(context.Background(), []byte(raw))
	require.NoError(t, err)
	require.NotNil(t, resp)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	return decoded
}

func rawToolCall(t *testing.T, srv *mcp.Server, tool, args string) (string, bool) {
	t.Helper()
	req := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":%q,"arguments":%s},"id":1}`, tool, args)
	decoded := rpc(t, srv, req)
	require.Nil(t, decoded["error"], "unexpected protocol error: %v", decoded["error"])

	result, ok := decoded["result"].(map[string]interface{})
	require.True(t, ok)
	content, ok := result["content"].([]interface{})
	require.True(t, ok)
	require.Len(t, content, 1)

	block := content[0].(map[string]interface{})
	require.Equal(t, "text", block["type"])
	isErr, _ := result["isError"].(bool)
	return block["text"].(string), isErr
}

// callTool invokes one tool via tools/call and returns its text content.
func callTool(t *testing.T, srv *mcp.Server, tool, args string) string {
	t.Helper()
	text, isErr := rawToolCall(t, srv, tool, args)
	require.False(t, isErr, "tool %s failed: %s", tool, text)
	return text
}

// callToolErr invokes one tool expecting a tool-level error and returns the
// error text.
func callToolErr(t *testing.T, srv *mcp.Server, tool, args string) string {
	t.Helper()
	text, isErr := rawToolCall(t, srv, tool, args)
	require.True(t, isErr, "tool %s unexpectedly succeeded: %s", tool, text)
	return text
}

// ---------------------------------------------------------------------------
// Protocol-level tests
// ---------------------------------------------------------------------------

func TestInitializeHandshake(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client","version":"1.0"}},"id":1}`)
	require.Nil(t, decoded["error"])

	result := decoded["result"].(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])

	info := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "engram", info["name"])

	caps := result["capabilities"].(map[string]interface{})
	assert.Contains(t, caps, "tools")
}

func TestMalformedJSONReturnsParseError(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{not json`)
	errObj := decoded["error"].(map[string]interface{})
	assert.EqualValues(t, -32700, errObj["code"])
	assert.Nil(t, decoded["id"])
}

func TestWrongProtocolVersionRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{"jsonrpc":"1.0","method":"ping","id":1}`)
	errObj := decoded["error"].(map[string]interface{})
	assert.EqualValues(t, -32600, errObj["code"])
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{"jsonrpc":"2.0","method":"resources/list","id":7}`)
	errObj := decoded["error"].(map[string]interface{})
	assert.EqualValues(t, -32601, errObj["code"])
	assert.Contains(t, errObj["message"], "resources/list")
	assert.EqualValues(t, 7, decoded["id"])
}

func TestNotificationGetsNoResponse(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := srv.HandleRequest(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestPingReturnsEmptyResult(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{"jsonrpc":"2.0","method":"ping","id":2}`)
	require.Nil(t, decoded["error"])
	assert.NotNil(t, decoded["result"])
}

func TestToolsListCoversEveryTool(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)
	require.Nil(t, decoded["error"])

	result := decoded["result"].(map[string]interface{})
	tools := result["tools"].([]interface{})

	var names []string
	for _, raw := range tools {
		tool := raw.(map[string]interface{})
		names = append(names, tool["name"].(string))
		assert.NotEmpty(t, tool["description"])
		assert.NotNil(t, tool["inputSchema"])
	}
	assert.ElementsMatch(t, []string{
		"record_event", "search_events", "get_timeline", "get_event",
		"update_core_memory", "store_learning", "update_entity",
		"create_relation", "search_knowledge", "recall", "reflect",
		"consolidate", "memory_status",
	}, names)
}

func TestToolsCallUnknownToolIsToolError(t *testing.T) {
	srv := newTestServer(t, nil)

	text := callToolErr(t, srv, "evolve_memory", `{}`)
	assert.Contains(t, text, "unknown tool")
}

func TestToolsCallMalformedParamsIsProtocolError(t *testing.T) {
	srv := newTestServer(t, nil)

	decoded := rpc(t, srv, `{"jsonrpc":"2.0","method":"tools/call","params":"record_event","id":1}`)
	errObj := decoded["error"].(map[string]interface{})
	assert.EqualValues(t, -32602, errObj["code"])
}

func TestSessionIDIsStable(t *testing.T) {
	srv := newTestServer(t, nil)

	id := srv.SessionID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, srv.SessionID())
}
