// Package storage defines the shared contracts of the relational store:
// sentinel error kinds, query option types, and the state keys the engines
// use to persist watermarks between runs.
package storage

import (
	"errors"
	"time"

	"github.com/scrypster/engram/pkg/types"
)

// Common storage errors.
var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrEntityNotFound indicates that a referenced entity does not exist.
	// Relation writes surface foreign-key violations as this kind so callers
	// can report the missing endpoint instead of a generic storage failure.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// State keys used by the reflection and consolidation engines. The
// per-agent reflection watermark is StateLastReflectedAtPrefix + agent id.
const (
	StateLastReflectionAt      = "last_reflection_at"
	StateLastReflectedAtPrefix = "last_reflected_at:"
	StateLastConsolidationAt   = "last_consolidation_at"
)

// TimelineOptions narrows a chronological event listing.
type TimelineOptions struct {
	// AgentID scopes the listing; required.
	AgentID string

	// EventType filters to a single type when non-empty.
	EventType types.EventType

	// Start and End bound created_at (inclusive) when non-nil.
	Start *time.Time
	End   *time.Time

	// Limit caps the number of rows. Defaults to 50, capped at 200.
	Limit int
}

// Normalize applies defaults and caps to the options in place.
func (o *TimelineOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// EntityUpsert carries the caller-supplied fields of an entity write.
// Optional fields are pointers so "not provided" is distinguishable from
// zero values.
type EntityUpsert struct {
	Name         string
	EntityType   types.EntityType
	Observations []string
	Summary      *string
	Importance   *float64
}
