package model

import "time"

// CacheLevel identifies which tier of the multi-level cache an item
// physically (or logically, for L1) resides in.
type CacheLevel int8

const (
	LevelL1 CacheLevel = iota + 1
	LevelL2
	LevelL3
)

func (l CacheLevel) String() string {
	switch l {
	case LevelL1:
		return "L1"
	case LevelL2:
		return "L2"
	case LevelL3:
		return "L3"
	default:
		return "unknown"
	}
}

// CacheMetadata tracks the bookkeeping fields shared by every cached item,
// independent of its value type.
//
// Invariants upheld by callers, never by this struct itself:
//   - AccessCount and Hotness are monotonically non-decreasing.
//   - ExpiresAt == nil means the item never expires.
type CacheMetadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    *time.Time
	AccessCount  uint64
	Hotness      uint64
	Size         uint64
	Category     string
	Level        CacheLevel
	Priority     int
}

// Expired reports whether the item's TTL, if any, has elapsed.
func (m *CacheMetadata) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Touch bumps LastAccessed and the monotonic counters on a read. It never
// resets CreatedAt, so promotion between tiers preserves item age.
func (m *CacheMetadata) Touch(now time.Time) {
	m.LastAccessed = now
	m.AccessCount++
	m.Hotness++
}

// CacheItem pairs an opaque value with its metadata. The cache package
// stores these behind a type-erased interface; typed accessors live there.
type CacheItem struct {
	Value    any
	Metadata CacheMetadata
}
