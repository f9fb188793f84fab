package types

import "time"

// Relation is a bi-temporal edge between two entities. At any wall-clock
// time there is at most one open row (valid_until IS NULL) per
// (from_entity, to_entity, relation_type) triple; creating a new edge first
// closes the currently open one.
type Relation struct {
	ID           string                 `json:"id"`
	FromEntity   string                 `json:"from_entity"`
	ToEntity     string                 `json:"to_entity"`
	RelationType string                 `json:"relation_type"`
	Weight       float64                `json:"weight"`
	ValidFrom    time.Time              `json:"valid_from"`
	ValidUntil   *time.Time             `json:"valid_until,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Active reports whether the relation is currently open.
func (r *Relation) Active() bool {
	return r.ValidUntil == nil
}
