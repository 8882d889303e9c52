package threadpool

import (
	"log/slog"
	"sync/atomic"
)

// PoolKind identifies one of the five categorized pools.
type PoolKind int

const (
	Network PoolKind = iota
	Message
	Database
	File
	Service
)

func (k PoolKind) String() string {
	switch k {
	case Network:
		return "network"
	case Message:
		return "message"
	case Database:
		return "database"
	case File:
		return "file"
	case Service:
		return "service"
	default:
		return "unknown"
	}
}

// defaultConfigs holds the per-pool defaults: Network 2/4, Message 4/8,
// Database 2/6, File 2/4, Service 1/2.
func defaultConfigs() map[PoolKind]Config {
	return map[PoolKind]Config{
		Network:  {Name: "network", Min: 2, Max: 4, AutoResize: true, LoadThreshold: 0.8},
		Message:  {Name: "message", Min: 4, Max: 8, AutoResize: true, LoadThreshold: 0.8},
		Database: {Name: "database", Min: 2, Max: 6, AutoResize: true, LoadThreshold: 0.8},
		File:     {Name: "file", Min: 2, Max: 4, AutoResize: true, LoadThreshold: 0.8},
		Service:  {Name: "service", Min: 1, Max: 2, AutoResize: true, LoadThreshold: 0.8},
	}
}

// HealthChangeFunc is invoked whenever overall health flips.
type HealthChangeFunc func(healthy bool)

// Manager owns the five worker pools and evaluates system-wide health.
// It is constructed once at startup and passed explicitly wherever pool
// scheduling is needed; there is no process-global instance.
type Manager struct {
	pools  map[PoolKind]*Pool
	logger *slog.Logger

	healthy       atomic.Bool
	onHealthChange []HealthChangeFunc
}

func NewManager(logger *slog.Logger, overrides map[PoolKind]Config) *Manager {
	cfgs := defaultConfigs()
	for k, v := range overrides {
		cfgs[k] = v
	}

	m := &Manager{
		pools:  make(map[PoolKind]*Pool, len(cfgs)),
		logger: logger,
	}
	m.healthy.Store(true)
	for k, cfg := range cfgs {
		m.pools[k] = NewPool(cfg, logger)
	}
	return m
}

// Submit dispatches to the named pool.
func (m *Manager) Submit(kind PoolKind, task Task, priority Priority) *Handle {
	return m.pools[kind].Submit(task, priority)
}

// OnHealthChange registers a subscriber notified on health transitions.
// Subscribers must not block the caller.
func (m *Manager) OnHealthChange(fn HealthChangeFunc) {
	m.onHealthChange = append(m.onHealthChange, fn)
}

// IsHealthy aggregates the health predicate: queued<1000 AND
// failureRate<5% AND active<50, across every pool.
func (m *Manager) IsHealthy() bool {
	var totalQueued, totalActive, totalTasks, totalFailed int64
	for _, p := range m.pools {
		s := p.Stats()
		totalQueued += s.Queued
		totalActive += s.Active
		totalTasks += s.Total
		totalFailed += s.Failed
	}

	failureRate := 0.0
	if totalTasks > 0 {
		failureRate = float64(totalFailed) / float64(totalTasks)
	}

	healthy := totalQueued < 1000 && failureRate < 0.05 && totalActive < 50

	if prev := m.healthy.Swap(healthy); prev != healthy {
		for _, fn := range m.onHealthChange {
			fn(healthy)
		}
	}
	return healthy
}

// PoolStats returns the snapshot stats for one pool.
func (m *Manager) PoolStats(kind PoolKind) Stats {
	return m.pools[kind].Stats()
}

func (m *Manager) Shutdown() {
	for _, p := range m.pools {
		p.Shutdown()
	}
}
