// Package session implements session management: UUIDv4 token issuance,
// dual-index (token <-> userID) lookup, and a background sweeper that
// expires and evicts stale sessions. It follows the same
// functional-options constructor plus ticker-driven eviction shape as
// internal/domain/registry.Hub.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

var (
	ErrNotFound = errors.New("session: token not found")
	ErrExpired  = errors.New("session: token expired")
)

// Option configures a Manager.
type Option func(*Manager)

func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// ExpiredFunc is invoked for every session the sweeper reaps, so callers can
// emit a SessionExpired event without the Manager depending on the
// event bus directly.
type ExpiredFunc func(sess *model.SessionInfo)

// Manager owns the token -> SessionInfo and userID -> token indexes. A user
// may hold multiple concurrent sessions (multi-device); byUser stores a set
// of tokens per user.
type Manager struct {
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *slog.Logger

	mu       sync.RWMutex
	byToken  map[string]*model.SessionInfo
	byUser   map[uint64]map[string]struct{}

	onExpired []ExpiredFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(opts ...Option) *Manager {
	m := &Manager{
		ttl:           24 * time.Hour,
		sweepInterval: 5 * time.Minute,
		byToken:       make(map[string]*model.SessionInfo),
		byUser:        make(map[uint64]map[string]struct{}),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.wg.Add(1)
	go m.runSweeper()
	return m
}

// OnExpired registers a subscriber notified (synchronously, from the
// sweeper goroutine) when a session is reaped for inactivity/TTL.
func (m *Manager) OnExpired(fn ExpiredFunc) {
	m.mu.Lock()
	m.onExpired = append(m.onExpired, fn)
	m.mu.Unlock()
}

// Issue mints a new UUIDv4 token (32 lowercase hex chars, no dashes)
// bound to userID and stores it in both indexes.
func (m *Manager) Issue(userID uint64, deviceInfo, ipAddress string) *model.SessionInfo {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	now := time.Now()
	sess := &model.SessionInfo{
		Token:      token,
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(m.ttl),
		Valid:      true,
	}

	m.mu.Lock()
	m.byToken[token] = sess
	set, ok := m.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		m.byUser[userID] = set
	}
	set[token] = struct{}{}
	m.mu.Unlock()

	return sess
}

// Validate looks up token, rejecting it if absent, invalidated, or expired.
// An expired token is deleted from both indexes on the spot rather than
// waiting for the sweeper, so the reverse index never serves a token past
// its expiry. On success it refreshes LastActive and slides ExpiresAt
// forward (sliding TTL), a per-request touch-to-extend policy.
func (m *Manager) Validate(token string) (*model.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	if sess.Expired(now) {
		m.deleteLocked(token, sess)
		return nil, ErrExpired
	}
	if !sess.Valid {
		// Revoked records stay until the sweeper reaps them so a racing
		// Validate observes the revocation rather than ErrNotFound.
		return nil, ErrExpired
	}
	sess.LastActive = now
	sess.ExpiresAt = now.Add(m.ttl)
	return sess, nil
}

// deleteLocked removes a session from both indexes. Callers hold mu.
func (m *Manager) deleteLocked(token string, sess *model.SessionInfo) {
	delete(m.byToken, token)
	if set, ok := m.byUser[sess.UserID]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(m.byUser, sess.UserID)
		}
	}
}

// Revoke invalidates a single token (logout). It leaves the record in place
// until the sweeper reaps it so a racing Validate still observes the
// invalidated state rather than ErrNotFound.
func (m *Manager) Revoke(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byToken[token]
	if !ok {
		return false
	}
	sess.Valid = false
	return true
}

// RevokeUser invalidates every session held by userID, e.g. on forced
// logout-everywhere.
func (m *Manager) RevokeUser(userID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.byUser[userID]
	if !ok {
		return 0
	}
	count := 0
	for token := range set {
		if sess, ok := m.byToken[token]; ok {
			sess.Valid = false
			count++
		}
	}
	return count
}

// SessionsForUser returns a snapshot of active tokens for userID.
func (m *Manager) SessionsForUser(userID uint64) []*model.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]*model.SessionInfo, 0, len(set))
	for token := range set {
		if sess, ok := m.byToken[token]; ok {
			out = append(out, sess)
		}
	}
	return out
}

func (m *Manager) runSweeper() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()

	m.mu.Lock()
	var reaped []*model.SessionInfo
	for token, sess := range m.byToken {
		if sess.Valid && !sess.Expired(now) {
			continue
		}
		m.deleteLocked(token, sess)
		reaped = append(reaped, sess)
	}
	subscribers := append([]ExpiredFunc(nil), m.onExpired...)
	m.mu.Unlock()

	if len(reaped) > 0 {
		m.logger.Info("SESSIONS_REAPED", "count", len(reaped))
	}
	for _, sess := range reaped {
		for _, fn := range subscribers {
			fn(sess)
		}
	}
}

// Shutdown stops the sweeper and waits for it to exit, returning early if
// ctx is done first.
func (m *Manager) Shutdown(ctx context.Context) {
	close(m.stopCh)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
