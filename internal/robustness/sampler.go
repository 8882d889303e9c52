package robustness

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// LatencyFunc supplies the rolling handler latency for the response-time
// dimension, typically from the cache's global metrics.
type LatencyFunc func() time.Duration

// LoadSampler periodically gathers CPU, memory, and handler-latency
// readings into a LoadSample and feeds the degradation manager, so level
// transitions come from live measurements rather than only forced
// escalations. Disk and network IO pressure are not sampled; they enter
// the blend at zero and the worst-dimension weighting carries the rest.
type LoadSampler struct {
	interval time.Duration
	deg      *DegradationManager
	latency  LatencyFunc
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewLoadSampler(deg *DegradationManager, interval time.Duration, latency LatencyFunc, logger *slog.Logger) *LoadSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &LoadSampler{
		interval: interval,
		deg:      deg,
		latency:  latency,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *LoadSampler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *LoadSampler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *LoadSampler) sampleOnce() {
	sample := LoadSample{}

	// Interval 0 compares against the previous call instead of blocking.
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		sample.CPUPercent = pcts[0]
	} else if err != nil && s.logger != nil {
		s.logger.Warn("CPU_SAMPLE_FAILED", "err", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemoryPercent = vm.UsedPercent
	} else if s.logger != nil {
		s.logger.Warn("MEMORY_SAMPLE_FAILED", "err", err)
	}

	if s.latency != nil {
		sample.AvgResponseTime = s.latency()
	}

	s.deg.Observe(sample)
}

func (s *LoadSampler) Shutdown() {
	close(s.stopCh)
	s.wg.Wait()
}
