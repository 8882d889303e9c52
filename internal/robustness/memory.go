package robustness

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryThreshold names the crossing levels: warning 80%, critical
// 90%, emergency 95% of system memory in use.
type MemoryThreshold int

const (
	MemoryOK MemoryThreshold = iota
	MemoryWarning
	MemoryCritical
	MemoryEmergency
)

func (t MemoryThreshold) String() string {
	switch t {
	case MemoryWarning:
		return "warning"
	case MemoryCritical:
		return "critical"
	case MemoryEmergency:
		return "emergency"
	default:
		return "ok"
	}
}

// CleanupFunc reclaims memory on threshold crossings. Handlers run in
// registration order and report how many bytes they freed.
type CleanupFunc func(threshold MemoryThreshold) (reclaimed uint64, ok bool)

// ThresholdFunc observes crossings, for wiring into the event channel.
type ThresholdFunc func(threshold MemoryThreshold, usedPercent float64)

// memSampler abstracts gopsutil so tests can inject synthetic readings.
type memSampler func() (usedPercent float64, err error)

func systemMemSampler() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// MemoryMonitor samples system-wide memory in use (not the process's own
// RSS) every interval (default 5 s)
// and invokes cleanup handlers when a threshold is crossed upward.
type MemoryMonitor struct {
	interval time.Duration
	sampler  memSampler
	logger   *slog.Logger

	mu        sync.Mutex
	cleanups  []CleanupFunc
	observers []ThresholdFunc
	last      MemoryThreshold

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMemoryMonitor(interval time.Duration, logger *slog.Logger) *MemoryMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MemoryMonitor{
		interval: interval,
		sampler:  systemMemSampler,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (m *MemoryMonitor) RegisterCleanup(fn CleanupFunc) {
	m.mu.Lock()
	m.cleanups = append(m.cleanups, fn)
	m.mu.Unlock()
}

func (m *MemoryMonitor) OnThreshold(fn ThresholdFunc) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *MemoryMonitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

func (m *MemoryMonitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sampleOnce()
		}
	}
}

func thresholdFor(usedPercent float64) MemoryThreshold {
	switch {
	case usedPercent >= 95:
		return MemoryEmergency
	case usedPercent >= 90:
		return MemoryCritical
	case usedPercent >= 80:
		return MemoryWarning
	default:
		return MemoryOK
	}
}

func (m *MemoryMonitor) sampleOnce() {
	used, err := m.sampler()
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("MEMORY_SAMPLE_FAILED", "err", err)
		}
		return
	}

	cur := thresholdFor(used)

	m.mu.Lock()
	prev := m.last
	m.last = cur
	cleanups := append([]CleanupFunc(nil), m.cleanups...)
	observers := append([]ThresholdFunc(nil), m.observers...)
	m.mu.Unlock()

	if cur <= prev || cur == MemoryOK {
		return
	}

	if m.logger != nil {
		m.logger.Warn("MEMORY_THRESHOLD_CROSSED", "threshold", cur.String(), "used_percent", used)
	}
	for _, fn := range observers {
		fn(cur, used)
	}

	var total uint64
	for _, fn := range cleanups {
		reclaimed, ok := fn(cur)
		total += reclaimed
		if !ok && m.logger != nil {
			m.logger.Warn("MEMORY_CLEANUP_FAILED", "threshold", cur.String())
		}
	}
	if total > 0 && m.logger != nil {
		m.logger.Info("MEMORY_RECLAIMED", "bytes", total, "threshold", cur.String())
	}
}

func (m *MemoryMonitor) Shutdown() {
	close(m.stopCh)
	m.wg.Wait()
}
