// Package types defines the core data structures for the engram memory
// engine: events, entities, relations, core memory blocks, reflections,
// and the scored results produced by recall.
package types

import "time"

// TimestampLayout is the canonical wire and storage format for timestamps:
// UTC, millisecond precision, fixed width. Fixed width keeps lexicographic
// ordering of formatted strings identical to chronological ordering, which
// window filters rely on.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the canonical format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a canonical-format timestamp. The result is UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// MemoryType classifies a record in the vector index.
type MemoryType string

// Vector record types
const (
	// MemoryTypeEvent is an episodic event row.
	MemoryTypeEvent MemoryType = "event"

	// MemoryTypeEntity is a semantic knowledge-graph entity.
	MemoryTypeEntity MemoryType = "entity"

	// MemoryTypeReflection is a synthesized insight.
	MemoryTypeReflection MemoryType = "reflection"
)

// ValidMemoryTypes contains all valid vector record types.
var ValidMemoryTypes = []MemoryType{
	MemoryTypeEvent,
	MemoryTypeEntity,
	MemoryTypeReflection,
}

// IsValidMemoryType checks if the given value is a valid memory type.
func IsValidMemoryType(t MemoryType) bool {
	for _, valid := range ValidMemoryTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// ClampImportance clamps an importance score into [0, 1].
func ClampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DefaultImportance is used when the caller provides no importance and no
// scorer is available.
const DefaultImportance = 0.5
