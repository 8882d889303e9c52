package robustness

import (
	"testing"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

func TestMemoryThresholdMapping(t *testing.T) {
	cases := []struct {
		used float64
		want MemoryThreshold
	}{
		{50, MemoryOK},
		{79.9, MemoryOK},
		{80, MemoryWarning},
		{90, MemoryCritical},
		{95, MemoryEmergency},
		{99, MemoryEmergency},
	}
	for _, tc := range cases {
		if got := thresholdFor(tc.used); got != tc.want {
			t.Errorf("thresholdFor(%v) = %v, want %v", tc.used, got, tc.want)
		}
	}
}

func TestMemoryMonitorInvokesCleanups(t *testing.T) {
	m := NewMemoryMonitor(time.Hour, nil)
	m.sampler = func() (float64, error) { return 92, nil }

	var got MemoryThreshold
	var reclaimed uint64
	m.OnThreshold(func(th MemoryThreshold, _ float64) { got = th })
	m.RegisterCleanup(func(th MemoryThreshold) (uint64, bool) {
		reclaimed = 4096
		return 4096, true
	})

	m.sampleOnce()

	if got != MemoryCritical {
		t.Fatalf("threshold = %v, want critical", got)
	}
	if reclaimed != 4096 {
		t.Fatal("cleanup handler not invoked")
	}

	// Same level again: no re-fire (crossings only).
	got = MemoryOK
	m.sampleOnce()
	if got != MemoryOK {
		t.Fatal("threshold re-fired without a new crossing")
	}
}

func TestStarvationDetection(t *testing.T) {
	d := NewStarvationDetector(50*time.Millisecond, nil)

	var starvedName string
	d.OnStarvation(func(name string, _ time.Duration) { starvedName = name })

	d.Register("worker-1")
	d.Register("worker-2")

	time.Sleep(60 * time.Millisecond)
	d.Heartbeat("worker-2")
	d.check(time.Now())

	if starvedName != "worker-1" {
		t.Fatalf("starved = %q, want worker-1", starvedName)
	}

	// worker-1 recovers; the flag re-arms.
	starvedName = ""
	d.Heartbeat("worker-1")
	d.check(time.Now())
	if starvedName != "" {
		t.Fatal("starvation re-fired after heartbeat")
	}
}

func TestDegradationLevels(t *testing.T) {
	m := NewDegradationManager(nil)

	var entered []DegradationLevel
	for _, lvl := range []DegradationLevel{DegradationLight, DegradationModerate, DegradationHeavy, DegradationEmergency} {
		lvl := lvl
		m.RegisterHandler(lvl, func(l DegradationLevel) { entered = append(entered, l) })
	}

	if got := m.Observe(LoadSample{CPUPercent: 10, MemoryPercent: 20}); got != DegradationNormal {
		t.Fatalf("idle sample classified %v", got)
	}
	if got := m.Observe(LoadSample{CPUPercent: 97, MemoryPercent: 96, DiskIOPercent: 90, NetIOPercent: 90, AvgResponseTime: 200 * time.Millisecond}); got != DegradationEmergency {
		t.Fatalf("saturated sample classified %v", got)
	}
	if len(entered) == 0 || entered[len(entered)-1] != DegradationEmergency {
		t.Fatalf("emergency handler not fired: %v", entered)
	}
}

func TestRecoveryExecutesAndCounts(t *testing.T) {
	deg := NewDegradationManager(nil)
	r := NewRecovery(nil, deg, nil)

	attempts := 0
	r.Register(model.DatabaseFailure, "store", RecoveryAction{
		Strategy:   RetryWithBackoff,
		MaxRetries: 3,
		Action: func() bool {
			attempts++
			return attempts == 2 // succeed on the second try
		},
	})

	r.ReportFailure(model.FailureInfo{
		Type:        model.DatabaseFailure,
		Component:   "store",
		Description: "query timeout",
		Severity:    5,
	})

	st := r.Stats(model.DatabaseFailure, "store")
	if st.Attempts != 2 || st.Successes != 1 || st.Failures != 1 {
		t.Fatalf("stats = %+v, want 2 attempts / 1 success / 1 failure", st)
	}
	if deg.Level() == DegradationEmergency {
		t.Fatal("severity 5 must not force Emergency")
	}

	// Severity >= 8 forces Emergency mode.
	r.ReportFailure(model.FailureInfo{
		Type:      model.MemoryExhaustion,
		Component: "cache",
		Severity:  9,
	})
	if deg.Level() != DegradationEmergency {
		t.Fatal("severity 9 did not force Emergency")
	}

	if len(r.History()) != 2 {
		t.Fatalf("history = %d records, want 2", len(r.History()))
	}
	if r.History()[0].Stack == "" {
		t.Fatal("failure record missing captured stack")
	}
}
