// Package stats provides the server-wide counters: lock-free atomics with
// a single read-and-copy snapshot routine. Counters keep moving while a
// snapshot is taken; each atomic is read exactly once per snapshot, which
// is what per-snapshot arithmetic needs.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names used across the server. Category strings are stable across
// releases.
const (
	ConnectionsAccepted = "connections_accepted"
	ConnectionsClosed   = "connections_closed"
	FramesReceived      = "frames_received"
	FramesSent          = "frames_sent"
	MessagesDispatched  = "messages_dispatched"
	MessagesDropped     = "messages_dropped"
	MessagesPersisted   = "messages_persisted"
	AuthFailures        = "auth_failures"
	ProtocolErrors      = "protocol_errors"
	HeartbeatsReceived  = "heartbeats_received"
)

// Collector owns the named atomic counters. Counters are created lazily on
// first Add/Inc and live for the process lifetime.
type Collector struct {
	counters sync.Map // string -> *atomic.Int64
	started  time.Time
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) counter(name string) *atomic.Int64 {
	if v, ok := c.counters.Load(name); ok {
		return v.(*atomic.Int64)
	}
	v, _ := c.counters.LoadOrStore(name, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func (c *Collector) Inc(name string)          { c.counter(name).Add(1) }
func (c *Collector) Add(name string, n int64) { c.counter(name).Add(n) }
func (c *Collector) Get(name string) int64    { return c.counter(name).Load() }

// Snapshot is the consistent-per-snapshot copy of every counter: each
// atomic is read exactly once, so per-snapshot arithmetic (rates, ratios)
// is internally consistent even though counters keep moving.
type Snapshot struct {
	Counters map[string]int64
	Uptime   time.Duration
	TakenAt  time.Time
}

func (c *Collector) Snapshot() Snapshot {
	now := time.Now()
	s := Snapshot{
		Counters: make(map[string]int64),
		Uptime:   now.Sub(c.started),
		TakenAt:  now,
	}
	c.counters.Range(func(k, v any) bool {
		s.Counters[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return s
}

// HealthSource is implemented by components that contribute a boolean
// health verdict (Thread Manager, Cache, Backpressure Controller).
type HealthSource interface {
	Name() string
	Healthy() bool
}

// HealthFunc adapts a closure to HealthSource.
type HealthFunc struct {
	SourceName string
	Fn         func() bool
}

func (h HealthFunc) Name() string  { return h.SourceName }
func (h HealthFunc) Healthy() bool { return h.Fn() }

// HealthReport is the aggregate verdict plus the per-source breakdown.
type HealthReport struct {
	Healthy bool
	Sources map[string]bool
}

// Reporter aggregates health sources and exposes the combined evaluation
// used by the admin /healthz route and the Robustness layer.
type Reporter struct {
	mu        sync.RWMutex
	sources   []HealthSource
	collector *Collector
}

func NewReporter(collector *Collector) *Reporter {
	return &Reporter{collector: collector}
}

func (r *Reporter) Register(src HealthSource) {
	r.mu.Lock()
	r.sources = append(r.sources, src)
	r.mu.Unlock()
}

func (r *Reporter) Evaluate() HealthReport {
	r.mu.RLock()
	sources := append([]HealthSource(nil), r.sources...)
	r.mu.RUnlock()

	rep := HealthReport{Healthy: true, Sources: make(map[string]bool, len(sources))}
	for _, src := range sources {
		ok := src.Healthy()
		rep.Sources[src.Name()] = ok
		if !ok {
			rep.Healthy = false
		}
	}
	return rep
}

func (r *Reporter) Collector() *Collector { return r.collector }
