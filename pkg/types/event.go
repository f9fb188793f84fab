package types

import (
	"fmt"
	"time"
)

// EventType classifies an episodic event.
type EventType string

// Event type constants
const (
	EventTypeMessage       EventType = "message"
	EventTypeEmail         EventType = "email"
	EventTypeAction        EventType = "action"
	EventTypeDecision      EventType = "decision"
	EventTypeObservation   EventType = "observation"
	EventTypeCommunication EventType = "communication"
	EventTypeFileChange    EventType = "file_change"
	EventTypeError         EventType = "error"
	EventTypeMilestone     EventType = "milestone"
)

// ValidEventTypes contains all valid event types.
var ValidEventTypes = []EventType{
	EventTypeMessage,
	EventTypeEmail,
	EventTypeAction,
	EventTypeDecision,
	EventTypeObservation,
	EventTypeCommunication,
	EventTypeFileChange,
	EventTypeError,
	EventTypeMilestone,
}

// IsValidEventType checks if the given value is a valid event type.
func IsValidEventType(t EventType) bool {
	for _, valid := range ValidEventTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// Content and identifier limits for events.
const (
	MaxAgentIDLength = 255
	MaxContentLength = 50000
)

// Event is a single row in the append-only episodic log. Rows are immutable
// after creation except for the access-tracking fields, which the touch
// operation updates.
type Event struct {
	ID          string                 `json:"id"`
	AgentID     string                 `json:"agent_id"`
	EventType   EventType              `json:"event_type"`
	Content     string                 `json:"content"`
	Importance  float64                `json:"importance"`
	Entities    []string               `json:"entities,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	AccessedAt  *time.Time             `json:"accessed_at,omitempty"`
	AccessCount int                    `json:"access_count"`
}

// Validate checks the caller-supplied fields of an event before it is
// persisted. Importance is clamped elsewhere rather than rejected.
func (e *Event) Validate() error {
	if len(e.AgentID) == 0 || len(e.AgentID) > MaxAgentIDLength {
		return fmt.Errorf("agent_id must be 1-%d characters, got %d", MaxAgentIDLength, len(e.AgentID))
	}
	if len(e.Content) == 0 || len(e.Content) > MaxContentLength {
		return fmt.Errorf("content must be 1-%d characters, got %d", MaxContentLength, len(e.Content))
	}
	if !IsValidEventType(e.EventType) {
		return fmt.Errorf("invalid event_type %q", e.EventType)
	}
	return nil
}
