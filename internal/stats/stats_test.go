package stats

import (
	"sync"
	"testing"
)

func TestCountersConcurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(FramesReceived)
			}
		}()
	}
	wg.Wait()

	if got := c.Get(FramesReceived); got != 8000 {
		t.Fatalf("frames_received = %d, want 8000", got)
	}
}

func TestSnapshotCopies(t *testing.T) {
	c := NewCollector()
	c.Add(MessagesDispatched, 5)
	c.Inc(MessagesDropped)

	snap := c.Snapshot()
	c.Add(MessagesDispatched, 100)

	if snap.Counters[MessagesDispatched] != 5 {
		t.Fatalf("snapshot mutated: %d", snap.Counters[MessagesDispatched])
	}
	if snap.Counters[MessagesDropped] != 1 {
		t.Fatalf("messages_dropped = %d, want 1", snap.Counters[MessagesDropped])
	}
}

func TestReporterAggregation(t *testing.T) {
	r := NewReporter(NewCollector())
	r.Register(HealthFunc{SourceName: "pools", Fn: func() bool { return true }})
	r.Register(HealthFunc{SourceName: "cache", Fn: func() bool { return true }})

	if rep := r.Evaluate(); !rep.Healthy {
		t.Fatal("all-healthy sources reported unhealthy")
	}

	r.Register(HealthFunc{SourceName: "queue", Fn: func() bool { return false }})
	rep := r.Evaluate()
	if rep.Healthy {
		t.Fatal("unhealthy source not reflected in aggregate")
	}
	if rep.Sources["queue"] {
		t.Fatal("queue source should be false")
	}
	if !rep.Sources["pools"] {
		t.Fatal("pools source should stay true")
	}
}
