package preload

import (
	"sync"
	"testing"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

type fakeSetter struct {
	mu   sync.Mutex
	sets map[string]any
}

func newFakeSetter() *fakeSetter { return &fakeSetter{sets: make(map[string]any)} }

func (f *fakeSetter) Set(key string, value any, ttl time.Duration, category string, priority int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets[key] = value
	return true
}

func (f *fakeSetter) get(key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sets[key]
	return v, ok
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestImmediateTaskIsCached(t *testing.T) {
	setter := newFakeSetter()
	p := New(Config{TickInterval: 10 * time.Millisecond}, setter, nil, nil)
	defer p.Shutdown()

	p.Submit(&model.PreloadTask{
		Key:      "k1",
		Priority: model.PriorityHigh,
		Loader:   func() (any, error) { return "v1", nil },
	})

	waitFor(t, time.Second, func() bool {
		v, ok := setter.get("k1")
		return ok && v == "v1"
	})
}

func TestConditionalTaskWaitsForCondition(t *testing.T) {
	setter := newFakeSetter()
	p := New(Config{TickInterval: 10 * time.Millisecond}, setter, nil, nil)
	defer p.Shutdown()

	var ready bool
	var mu sync.Mutex

	p.Submit(&model.PreloadTask{
		Key:      "k1",
		Priority: model.PriorityNormal,
		Condition: func() bool {
			mu.Lock()
			defer mu.Unlock()
			return ready
		},
		Loader: func() (any, error) { return "v1", nil },
	})

	time.Sleep(50 * time.Millisecond)
	if _, ok := setter.get("k1"); ok {
		t.Fatal("task ran before its condition became true")
	}

	mu.Lock()
	ready = true
	mu.Unlock()

	waitFor(t, time.Second, func() bool {
		_, ok := setter.get("k1")
		return ok
	})
}

func TestScheduledTaskWaitsUntilScheduledTime(t *testing.T) {
	setter := newFakeSetter()
	p := New(Config{TickInterval: 10 * time.Millisecond}, setter, nil, nil)
	defer p.Shutdown()

	future := time.Now().Add(150 * time.Millisecond)
	p.Submit(&model.PreloadTask{
		Key:           "k1",
		Priority:      model.PriorityNormal,
		ScheduledTime: &future,
		Loader:        func() (any, error) { return "v1", nil },
	})

	time.Sleep(50 * time.Millisecond)
	if _, ok := setter.get("k1"); ok {
		t.Fatal("scheduled task ran before its time")
	}

	waitFor(t, time.Second, func() bool {
		_, ok := setter.get("k1")
		return ok
	})
}

func TestRetryOnLoaderError(t *testing.T) {
	setter := newFakeSetter()
	p := New(Config{TickInterval: 10 * time.Millisecond, RetryDelay: 10 * time.Millisecond}, setter, nil, nil)
	defer p.Shutdown()

	var attempts int
	var mu sync.Mutex

	p.Submit(&model.PreloadTask{
		Key:        "k1",
		Priority:   model.PriorityNormal,
		MaxRetries: 2,
		Loader: func() (any, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n < 2 {
				return nil, errFake{}
			}
			return "v1", nil
		},
	})

	waitFor(t, time.Second, func() bool {
		_, ok := setter.get("k1")
		return ok
	})
}

type errFake struct{}

func (errFake) Error() string { return "fake loader error" }

func TestHigherPriorityRunsBeforeLower(t *testing.T) {
	setter := newFakeSetter()
	p := New(Config{TickInterval: time.Hour}, setter, nil, nil) // tick manually below
	defer p.Shutdown()

	var order []string
	var mu sync.Mutex
	record := func(key string) func() (any, error) {
		return func() (any, error) {
			mu.Lock()
			order = append(order, key)
			mu.Unlock()
			return key, nil
		}
	}

	p.Submit(&model.PreloadTask{Key: "low", Priority: model.PriorityLow, Loader: record("low")})
	p.Submit(&model.PreloadTask{Key: "critical", Priority: model.PriorityCritical, Loader: record("critical")})
	p.Submit(&model.PreloadTask{Key: "normal", Priority: model.PriorityNormal, Loader: record("normal")})

	p.tick()
	p.tick()
	p.tick()

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "critical" {
		t.Fatalf("order[0] = %q, want critical", order[0])
	}
}
