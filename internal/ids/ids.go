// Package ids generates and validates the identifiers used across the
// engine: 26-character uppercase Crockford base32 ULIDs. The time prefix
// makes equal-prefix lexicographic sorting equal to creation order.
package ids

import "github.com/oklog/ulid/v2"

// Length is the canonical encoded length of an identifier.
const Length = 26

// New returns a fresh identifier. Safe for concurrent use; identifiers
// generated within the same millisecond remain monotonically ordered.
func New() string {
	return ulid.Make().String()
}

// Valid reports whether s is a structurally valid identifier: exactly 26
// characters of Crockford base32 within the ULID range.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
