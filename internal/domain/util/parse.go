// Package util holds the small defensive parsing helpers the DTO layer
// uses when decoding broker payloads that may carry malformed identifiers
// or timestamps. Parsing never fails loudly here: a bad value degrades to
// the zero value and the consumer's validation decides what to do with it.
package util

import (
	"time"

	"github.com/google/uuid"
)

// SafeParseUUID parses s, returning uuid.Nil on any error.
func SafeParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// SafeParseRFC3339 parses an RFC3339 timestamp into unix milliseconds,
// returning 0 on any error.
func SafeParseRFC3339(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
