package robustness

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// RecoveryStrategy enumerates the supported recovery modes.
type RecoveryStrategy int

const (
	Restart RecoveryStrategy = iota + 1
	Fallback
	CircuitBreakerStrategy
	RetryWithBackoff
	GradualRecovery
	ManualIntervention
)

func (s RecoveryStrategy) String() string {
	switch s {
	case Restart:
		return "restart"
	case Fallback:
		return "fallback"
	case CircuitBreakerStrategy:
		return "circuit_breaker"
	case RetryWithBackoff:
		return "retry_with_backoff"
	case GradualRecovery:
		return "gradual_recovery"
	case ManualIntervention:
		return "manual_intervention"
	default:
		return "unknown"
	}
}

// RecoveryAction binds a strategy and an executable action to one
// (FailureType, component) pair.
type RecoveryAction struct {
	Strategy     RecoveryStrategy
	Action       func() bool
	MaxRetries   int
	BackoffDelay time.Duration
	IsAsync      bool
}

type recoveryKey struct {
	failureType model.FailureType
	component   string
}

// RecoveryStats counts execution outcomes per registered action.
type RecoveryStats struct {
	Attempts  int64
	Successes int64
	Failures  int64
}

// Recovery is the failure-report entry point and the (FailureType,
// component) -> RecoveryAction registry. Async actions are posted to the
// Service pool; severity >= 8 forces Emergency degradation.
type Recovery struct {
	pool        *threadpool.Manager
	degradation *DegradationManager
	logger      *slog.Logger

	mu      sync.Mutex
	actions map[recoveryKey]RecoveryAction
	stats   map[recoveryKey]*RecoveryStats
	history []model.FailureInfo
}

const failureHistoryCap = 256

func NewRecovery(pool *threadpool.Manager, degradation *DegradationManager, logger *slog.Logger) *Recovery {
	return &Recovery{
		pool:        pool,
		degradation: degradation,
		logger:      logger,
		actions:     make(map[recoveryKey]RecoveryAction),
		stats:       make(map[recoveryKey]*RecoveryStats),
	}
}

// Register maps one (failure type, component) pair to its recovery action.
func (r *Recovery) Register(ft model.FailureType, component string, action RecoveryAction) {
	key := recoveryKey{ft, component}
	r.mu.Lock()
	r.actions[key] = action
	if _, ok := r.stats[key]; !ok {
		r.stats[key] = &RecoveryStats{}
	}
	r.mu.Unlock()
}

// ReportFailure records the failure (with a captured goroutine stack) and
// executes the matching recovery action, synchronously or on the Service
// pool per the action's IsAsync flag.
func (r *Recovery) ReportFailure(info model.FailureInfo) {
	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}
	if info.Stack == "" {
		info.Stack = string(debug.Stack())
	}

	if r.logger != nil {
		r.logger.Error("FAILURE_REPORTED",
			"type", info.Type.String(),
			"component", info.Component,
			"severity", info.Severity,
			"description", info.Description)
	}

	key := recoveryKey{info.Type, info.Component}

	r.mu.Lock()
	r.history = append(r.history, info)
	if len(r.history) > failureHistoryCap {
		r.history = r.history[len(r.history)-failureHistoryCap:]
	}
	action, ok := r.actions[key]
	st := r.stats[key]
	r.mu.Unlock()

	if info.Severity >= 8 && r.degradation != nil {
		r.degradation.ForceEmergency()
	}

	if !ok {
		return
	}

	if action.IsAsync && r.pool != nil {
		r.pool.Submit(threadpool.Service, func(ctx context.Context) {
			r.execute(key, action, st)
		}, threadpool.High)
	} else {
		r.execute(key, action, st)
	}
}

// execute retries the action up to MaxRetries with BackoffDelay between
// attempts.
func (r *Recovery) execute(key recoveryKey, action RecoveryAction, st *RecoveryStats) {
	attempts := action.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		r.bump(st, func(s *RecoveryStats) { s.Attempts++ })
		if action.Action != nil && action.Action() {
			r.bump(st, func(s *RecoveryStats) { s.Successes++ })
			if r.logger != nil {
				r.logger.Info("RECOVERY_SUCCEEDED", "component", key.component, "strategy", action.Strategy.String(), "attempt", i+1)
			}
			return
		}
		r.bump(st, func(s *RecoveryStats) { s.Failures++ })
		if i < attempts-1 && action.BackoffDelay > 0 {
			time.Sleep(action.BackoffDelay)
		}
	}
	if r.logger != nil {
		r.logger.Error("RECOVERY_EXHAUSTED", "component", key.component, "strategy", action.Strategy.String(), "attempts", attempts)
	}
}

func (r *Recovery) bump(st *RecoveryStats, fn func(*RecoveryStats)) {
	if st == nil {
		return
	}
	r.mu.Lock()
	fn(st)
	r.mu.Unlock()
}

// Stats returns a copy of the outcome counters for one registration.
func (r *Recovery) Stats(ft model.FailureType, component string) RecoveryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stats[recoveryKey{ft, component}]; ok {
		return *st
	}
	return RecoveryStats{}
}

// History returns the retained failure records, newest last.
func (r *Recovery) History() []model.FailureInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FailureInfo(nil), r.history...)
}
