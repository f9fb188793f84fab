// Package mcp exposes the memory engine over the Model Context Protocol:
// JSON-RPC 2.0 tool calls, served one request per line on stdio.
package mcp

import (
	"encoding/json"
	"strings"
)

// StringList is a []string that also accepts a JSON-encoded string form
// ("[\"a\",\"b\"]") or a comma-separated string ("a, b"). Some MCP clients
// send array arguments this way instead of as proper JSON arrays.
type StringList []string

// UnmarshalJSON accepts all three forms. Unrecognised shapes are ignored
// rather than failing the whole tool call.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var direct []string
	if err := json.Unmarshal(data, &direct); err == nil {
		*l = direct
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		_ = json.Unmarshal([]byte(s), &direct)
		*l = direct
		return nil
	}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// RecordEventArgs contains arguments for the record_event tool.
type RecordEventArgs struct {
	AgentID    string                 `json:"agent_id,omitempty"`   // Owning agent (default "default")
	EventType  string                 `json:"event_type"`           // Event type (required)
	Content    string                 `json:"content"`              // Event content (required)
	Importance *float64               `json:"importance,omitempty"` // Importance override in [0, 1]; scored or defaulted when omitted
	Entities   StringList             `json:"entities,omitempty"`   // Entity names mentioned in the event
	Metadata   map[string]interface{} `json:"metadata,omitempty"`   // Arbitrary key-value metadata
}

// SearchEventsArgs contains arguments for the search_events tool.
type SearchEventsArgs struct {
	AgentID   string     `json:"agent_id,omitempty"`   // Owning agent (default "default")
	Query     string     `json:"query"`                // Search query (required)
	EventType string     `json:"event_type,omitempty"` // Restrict to one event type
	Entities  StringList `json:"entities,omitempty"`   // Keep only events mentioning any of these entities
	StartTime string     `json:"start_time,omitempty"` // RFC 3339 lower bound for created_at
	EndTime   string     `json:"end_time,omitempty"`   // RFC 3339 upper bound for created_at
	Limit     int        `json:"limit,omitempty"`      // Max results (default 20)
}

// GetTimelineArgs contains arguments for the get_timeline tool. Results are
// ordered newest first.
type GetTimelineArgs struct {
	AgentID   string `json:"agent_id,omitempty"`   // Owning agent (default "default")
	EventType string `json:"event_type,omitempty"` // Restrict to one event type
	StartTime string `json:"start_time,omitempty"` // RFC 3339 lower bound for created_at
	EndTime   string `json:"end_time,omitempty"`   // RFC 3339 upper bound for created_at
	Limit     int    `json:"limit,omitempty"`      // Max results (default 50, max 200)
}

// GetEventArgs contains arguments for the get_event tool.
type GetEventArgs struct {
	ID string `json:"id"` // Event ID (required)
}

// UpdateCoreMemoryArgs contains arguments for the update_core_memory tool.
type UpdateCoreMemoryArgs struct {
	BlockType string `json:"block_type"`          // "persona" or "user_profile" (required)
	BlockKey  string `json:"block_key,omitempty"` // Block key (default "default")
	Operation string `json:"operation"`           // "append", "replace", or "remove" (required)
	Content   string `json:"content,omitempty"`   // Block content; ignored by remove
}

// StoreLearningArgs contains arguments for the store_learning tool.
type StoreLearningArgs struct {
	AgentID  string `json:"agent_id,omitempty"` // Owning agent (default "default")
	Content  string `json:"content"`            // The lesson learned (required)
	Category string `json:"category,omitempty"` // Optional grouping label stored in the event metadata
}

// UpdateEntityArgs contains arguments for the update_entity tool.
type UpdateEntityArgs struct {
	Name         string     `json:"name"`                   // Entity name (required)
	EntityType   string     `json:"entity_type"`            // Entity type (required)
	Observations StringList `json:"observations,omitempty"` // Observations to merge in; duplicates are dropped
	Summary      *string    `json:"summary,omitempty"`      // Replacement summary
	Importance   *float64   `json:"importance,omitempty"`   // Replacement importance in [0, 1]
}

// CreateRelationArgs contains arguments for the create_relation tool.
type CreateRelationArgs struct {
	FromEntity   string `json:"from_entity"`   // Source entity name (required)
	ToEntity     string `json:"to_entity"`     // Target entity name (required)
	RelationType string `json:"relation_type"` // Relation label, e.g. "works_at" (required)
}

// SearchKnowledgeArgs contains arguments for the search_knowledge tool.
type SearchKnowledgeArgs struct {
	Query      string `json:"query"`                 // Search query (required)
	EntityType string `json:"entity_type,omitempty"` // Restrict to one entity type
	Limit      int    `json:"limit,omitempty"`       // Max results (default 20)
}

// RecallArgs contains arguments for the recall tool.
type RecallArgs struct {
	Query   string `json:"query"`              // Search query (required)
	Limit   int    `json:"limit,omitempty"`    // Max results (default 20, max 50)
	AgentID string `json:"agent_id,omitempty"` // Keep only event memories owned by this agent; empty means all

	// IncludeCore controls whether core memory blocks are attached to the
	// response. Defaults to true when omitted.
	IncludeCore *bool `json:"include_core,omitempty"`
}

// ReflectArgs contains arguments for the reflect tool.
type ReflectArgs struct {
	AgentID string `json:"agent_id,omitempty"` // Agent to reflect for (default "default")
	Force   bool   `json:"force,omitempty"`    // Run even when the importance threshold is not met
}

// ConsolidateArgs contains arguments for the consolidate tool.
type ConsolidateArgs struct {
	MaxAgeDays int `json:"max_age_days,omitempty"` // Accepted for compatibility; age-based pruning is not implemented
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Always "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
