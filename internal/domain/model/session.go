package model

import "time"

// SessionInfo is the per-token record managed by the Session Manager.
type SessionInfo struct {
	Token      string
	UserID     uint64
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time
	Valid      bool
}

// Expired reports whether the session must be treated as expired. A
// session exactly at ExpiresAt is already expired.
func (s *SessionInfo) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
