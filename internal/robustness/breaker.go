// Package robustness holds the failure-containment layer: per-dependency
// circuit breakers (sony/gobreaker), a process memory monitor
// (shirou/gopsutil), a thread-starvation detector, a performance
// degradation manager, hot-config reload, and the failure-recovery
// registry that ties them together. Subscribers to its events are plain
// callbacks and must not block the emitter.
package robustness

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a protected call fails fast because the breaker
// is Open (or the HalfOpen probe slot is taken).
var ErrOpen = errors.New("robustness: circuit open")

// BreakerConfig carries the state-machine tunables.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // Closed -> Open on this many consecutive failures
	SuccessThreshold uint32        // HalfOpen -> Closed on this many consecutive successes
	Timeout          time.Duration // Open -> HalfOpen after this long
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// State mirrors gobreaker's three states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(name string, from, to State)

// Breaker protects calls to one external dependency (DB, L3, broker).
// While Open every call fails fast with ErrOpen; in HalfOpen, up to
// SuccessThreshold probes are admitted and that many consecutive successes
// close the breaker again.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

func NewBreaker(cfg BreakerConfig, logger *slog.Logger, onChange StateChangeFunc) *Breaker {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		if logger != nil {
			logger.Warn("CIRCUIT_STATE_CHANGED", "breaker", name, "from", mapState(from).String(), "to", mapState(to).String())
		}
		if onChange != nil {
			onChange(name, mapState(from), mapState(to))
		}
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// Execute runs fn under the breaker. An Open breaker (or an exhausted
// HalfOpen probe window) returns ErrOpen without invoking fn.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return res, err
}

// Do is Execute for calls with no result value.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.Execute(func() (any, error) { return nil, fn() })
	return err
}

func (b *Breaker) State() State { return mapState(b.cb.State()) }
func (b *Breaker) Name() string { return b.cb.Name() }

// BreakerSet holds the per-dependency breakers constructed at startup and
// passed explicitly to the components that call out.
type BreakerSet struct {
	Database *Breaker
	L3       *Breaker
	Broker   *Breaker
}

func NewBreakerSet(logger *slog.Logger, onChange StateChangeFunc) *BreakerSet {
	return &BreakerSet{
		Database: NewBreaker(BreakerConfig{Name: "database", FailureThreshold: 3, SuccessThreshold: 2, Timeout: 30 * time.Second}, logger, onChange),
		L3:       NewBreaker(BreakerConfig{Name: "cache_l3", FailureThreshold: 5, SuccessThreshold: 2, Timeout: 15 * time.Second}, logger, onChange),
		Broker:   NewBreaker(BreakerConfig{Name: "broker", FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}, logger, onChange),
	}
}
