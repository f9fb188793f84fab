package types

import "time"

// ScoredMemory is a single recall hit with its score breakdown.
type ScoredMemory struct {
	ID         string     `json:"id"`
	MemoryType MemoryType `json:"memory_type"`
	Content    string     `json:"content"`
	Score      float64    `json:"score"`
	Recency    float64    `json:"recency"`
	Importance float64    `json:"importance"`
	Relevance  float64    `json:"relevance"`
	Distance   float64    `json:"distance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RecallResult is the unified retrieval response. TotalSearched counts the
// raw vector hits before agent filtering and truncation.
type RecallResult struct {
	CoreMemory    []CoreMemoryBlock `json:"core_memory,omitempty"`
	Memories      []ScoredMemory    `json:"memories"`
	TotalSearched int               `json:"total_searched"`
}

// MemoryStats summarizes the stored corpus for status reporting.
type MemoryStats struct {
	EventCount          int        `json:"event_count"`
	EntityCount         int        `json:"entity_count"`
	RelationCount       int        `json:"relation_count"`
	ActiveRelationCount int        `json:"active_relation_count"`
	ReflectionCount     int        `json:"reflection_count"`
	CoreBlockCount      int        `json:"core_block_count"`
	VectorCount         int        `json:"vector_count"`
	OldestEvent         *time.Time `json:"oldest_event,omitempty"`
	NewestEvent         *time.Time `json:"newest_event,omitempty"`
}
