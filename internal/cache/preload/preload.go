// Package preload implements cache warming: a four-band priority queue
// plus a scheduled heap, a sliding-window rate limiter, and
// retry-with-backoff, driving warm-up work onto the Service pool and
// depositing results into the multi-level cache.
package preload

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
	"github.com/webitel/im-chat-core/internal/threadpool"
)

// Setter is the subset of the Multi-Level Cache's API the Preloader needs
// to deposit a loaded value.
type Setter interface {
	Set(key string, value any, ttl time.Duration, category string, priority int) bool
}

// Generator is a registered adaptive-fill producer: Fn lists candidate
// keys, LoaderFor builds the value-fetcher for one of them.
type Generator struct {
	Name      string
	Fn        func() []string
	LoaderFor func(key string) model.Loader
}

// Config controls rate limiting, retry, and adaptive-generation cadence.
type Config struct {
	MaxTasksPerSecond int
	RateLimitWindow   time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	AdaptiveInterval  time.Duration
	TickInterval      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTasksPerSecond == 0 {
		c.MaxTasksPerSecond = 50
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.AdaptiveInterval == 0 {
		c.AdaptiveInterval = 5 * time.Minute
	}
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	return c
}

// taskHeap orders *model.PreloadTask by (priority desc, enqueue order asc).
type taskHeap []*queued

type queued struct {
	task *model.PreloadTask
	seq  int64
}

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)        { *h = append(*h, x.(*queued)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduledHeap orders tasks by ScheduledTime ascending.
type scheduledHeap []*model.PreloadTask

func (h scheduledHeap) Len() int { return len(h) }
func (h scheduledHeap) Less(i, j int) bool {
	return h[i].ScheduledTime.Before(*h[j].ScheduledTime)
}
func (h scheduledHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *scheduledHeap) Push(x any)   { *h = append(*h, x.(*model.PreloadTask)) }
func (h *scheduledHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Preloader is the warm-up worker: one goroutine ticking every TickInterval.
type Preloader struct {
	cfg    Config
	cache  Setter
	pool   *threadpool.Manager
	logger *slog.Logger

	mu         sync.Mutex
	ready      taskHeap
	scheduled  scheduledHeap
	seq        int64
	rateWindow []time.Time
	generators []Generator

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, cache Setter, pool *threadpool.Manager, logger *slog.Logger) *Preloader {
	p := &Preloader{
		cfg:    cfg.withDefaults(),
		cache:  cache,
		pool:   pool,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Submit enqueues a task. Scheduled tasks (ScheduledTime != nil) go to the
// scheduled heap; everything else is immediately ready.
func (p *Preloader) Submit(task *model.PreloadTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if task.ScheduledTime != nil {
		heap.Push(&p.scheduled, task)
		return
	}
	p.pushReady(task)
}

func (p *Preloader) pushReady(task *model.PreloadTask) {
	heap.Push(&p.ready, &queued{task: task, seq: p.seq})
	p.seq++
}

// RegisterGenerator adds an adaptive pattern generator.
func (p *Preloader) RegisterGenerator(g Generator) {
	p.mu.Lock()
	p.generators = append(p.generators, g)
	p.mu.Unlock()
}

func (p *Preloader) run() {
	defer p.wg.Done()
	tick := time.NewTicker(p.cfg.TickInterval)
	defer tick.Stop()

	adaptive := time.NewTicker(p.cfg.AdaptiveInterval)
	defer adaptive.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-tick.C:
			p.tick()
		case <-adaptive.C:
			p.runGenerators()
		}
	}
}

// tick runs one scheduling round: promote ready scheduled tasks,
// dequeue the next by priority, re-enqueue if its condition is false, and
// submit to the Service pool.
func (p *Preloader) tick() {
	now := time.Now()

	p.mu.Lock()
	for p.scheduled.Len() > 0 && p.scheduled[0].Ready(now) {
		t := heap.Pop(&p.scheduled).(*model.PreloadTask)
		p.pushReady(t)
	}

	if p.ready.Len() == 0 {
		p.mu.Unlock()
		return
	}
	next := heap.Pop(&p.ready).(*queued).task

	if next.Condition != nil && !next.Condition() {
		p.pushReady(next)
		p.mu.Unlock()
		return
	}

	if !p.allowStart(now) {
		p.pushReady(next)
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Warn("RateLimitExceeded", "key", next.Key)
		}
		return
	}
	p.mu.Unlock()

	p.dispatch(next)
}

// allowStart enforces the sliding-window rate limiter. Caller holds p.mu.
func (p *Preloader) allowStart(now time.Time) bool {
	cutoff := now.Add(-p.cfg.RateLimitWindow)
	kept := p.rateWindow[:0]
	for _, t := range p.rateWindow {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.rateWindow = kept
	if len(p.rateWindow) >= p.cfg.MaxTasksPerSecond {
		return false
	}
	p.rateWindow = append(p.rateWindow, now)
	return true
}

func (p *Preloader) dispatch(task *model.PreloadTask) {
	run := func(ctx context.Context) {
		value, err := task.Loader()
		if err != nil {
			p.handleFailure(task, err)
			return
		}
		if p.cache != nil {
			p.cache.Set(task.Key, value, task.TTL, task.Category, priorityWeight(task.Priority))
		}
	}

	if p.pool == nil {
		run(context.Background())
		return
	}
	p.pool.Submit(threadpool.Service, run, poolPriority(task.Priority))
}

func (p *Preloader) handleFailure(task *model.PreloadTask, err error) {
	if !task.CanRetry() {
		if p.logger != nil {
			p.logger.Error("PRELOAD_TASK_FAILED", "key", task.Key, "err", err, "retries_exhausted", true)
		}
		return
	}
	task.RetryCount++
	if p.logger != nil {
		p.logger.Warn("PRELOAD_TASK_RETRY", "key", task.Key, "attempt", task.RetryCount, "err", err)
	}

	delay := p.cfg.RetryDelay
	time.AfterFunc(delay, func() {
		p.mu.Lock()
		p.pushReady(task)
		p.mu.Unlock()
	})
}

// runGenerators invokes every registered generator, submitting Low-priority
// fill tasks for each produced key, tagged category "adaptive".
func (p *Preloader) runGenerators() {
	p.mu.Lock()
	gens := append([]Generator(nil), p.generators...)
	p.mu.Unlock()

	for _, g := range gens {
		keys := g.Fn()
		for _, k := range keys {
			key := k
			task := &model.PreloadTask{
				ID:       g.Name + ":" + key,
				Key:      key,
				Category: "adaptive",
				Type:     model.PreloadAdaptive,
				Priority: model.PriorityLow,
				Loader:   g.LoaderFor(key),
			}
			p.Submit(task)
		}
	}
}

func priorityWeight(p model.PreloadPriority) int {
	switch p {
	case model.PriorityCritical:
		return 90
	case model.PriorityHigh:
		return 70
	case model.PriorityNormal:
		return 50
	default:
		return 20
	}
}

func poolPriority(p model.PreloadPriority) threadpool.Priority {
	switch p {
	case model.PriorityCritical:
		return threadpool.Critical
	case model.PriorityHigh:
		return threadpool.High
	case model.PriorityNormal:
		return threadpool.Normal
	default:
		return threadpool.Low
	}
}

func (p *Preloader) Shutdown() {
	close(p.stopCh)
	p.wg.Wait()
}
