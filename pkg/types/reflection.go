package types

import "time"

// Reflection is a synthesized insight grounded in a window of events.
// SourceIDs lists every event the reflection cycle consumed, not only the
// ones quoted in the prompt.
type Reflection struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	SourceIDs   []string   `json:"source_ids"`
	Importance  float64    `json:"importance"`
	Depth       int        `json:"depth"`
	CreatedAt   time.Time  `json:"created_at"`
	AccessedAt  *time.Time `json:"accessed_at,omitempty"`
	AccessCount int        `json:"access_count"`
}
