package threadpool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPoolRunsTask(t *testing.T) {
	p := NewPool(Config{Name: "t", Min: 1, Max: 2}, testLogger())
	defer p.Shutdown()

	var ran atomic.Bool
	h := p.Submit(func(ctx context.Context) { ran.Store(true) }, Normal)
	h.Wait()

	if !ran.Load() {
		t.Fatal("task did not run")
	}
	if s := p.Stats(); s.Completed != 1 {
		t.Fatalf("Completed = %d, want 1", s.Completed)
	}
}

func TestPoolPriorityOrder(t *testing.T) {
	p := NewPool(Config{Name: "t", Min: 0, Max: 1}, testLogger())
	defer p.Shutdown()

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	block := make(chan struct{})

	// occupy the single worker so subsequent submissions queue up
	wg.Add(1)
	p.Submit(func(ctx context.Context) {
		defer wg.Done()
		<-block
	}, Normal)

	var done sync.WaitGroup
	submit := func(name string, pr Priority) {
		done.Add(1)
		p.Submit(func(ctx context.Context) {
			defer done.Done()
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}, pr)
	}

	// give the blocking task time to actually be dequeued first
	time.Sleep(50 * time.Millisecond)
	submit("low", Low)
	submit("critical", Critical)
	submit("normal", Normal)

	close(block)
	wg.Wait()
	done.Wait()

	if len(order) != 3 || order[0] != "critical" || order[1] != "normal" || order[2] != "low" {
		t.Fatalf("order = %v, want [critical normal low]", order)
	}
}

func TestPoolPanicRecovery(t *testing.T) {
	p := NewPool(Config{Name: "t", Min: 1, Max: 1}, testLogger())
	defer p.Shutdown()

	h := p.Submit(func(ctx context.Context) { panic("boom") }, Normal)
	h.Wait()

	if s := p.Stats(); s.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", s.Failed)
	}

	// pool must still accept work after a panic
	var ran atomic.Bool
	h2 := p.Submit(func(ctx context.Context) { ran.Store(true) }, Normal)
	h2.Wait()
	if !ran.Load() {
		t.Fatal("pool did not recover after panic")
	}
}

func TestPoolCancel(t *testing.T) {
	p := NewPool(Config{Name: "t", Min: 0, Max: 1}, testLogger())
	defer p.Shutdown()

	block := make(chan struct{})
	p.Submit(func(ctx context.Context) { <-block }, Normal)
	time.Sleep(50 * time.Millisecond)

	var ran atomic.Bool
	h := p.Submit(func(ctx context.Context) { ran.Store(true) }, Normal)
	h.Cancel()
	close(block)
	h.Wait()

	if ran.Load() {
		t.Fatal("cancelled task should not have run")
	}
	if s := p.Stats(); s.Failed < 1 {
		t.Fatalf("Failed = %d, want >= 1", s.Failed)
	}
}
