// Package backpressure implements the global admission-control gate: a
// bounded logical queue whose fill ratio classifies system load into four
// levels, with a 1 Hz ticker deriving arrival/drain rates and an event
// channel notifying subscribers of level transitions. Like the per-user
// Cell mailbox (internal/domain/registry/cell.go), a full queue drops
// work instead of blocking the producer.
package backpressure

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the coarse load classification.
type Level int

const (
	Normal Level = iota
	Warning
	Critical
	Emergency
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Emergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// levelFor maps load = currentSize/maxQueueSize to a Level:
// <0.7 Normal, 0.7-0.85 Warning, 0.85-0.95 Critical, >=0.95 Emergency.
func levelFor(load float64) Level {
	switch {
	case load >= 0.95:
		return Emergency
	case load >= 0.85:
		return Critical
	case load >= 0.7:
		return Warning
	default:
		return Normal
	}
}

// LevelChangeFunc receives level transitions. Subscribers must not block.
type LevelChangeFunc func(old, new Level)

// Rates is the arrival/drain snapshot computed by the 1 Hz ticker.
type Rates struct {
	ArrivalPerSec float64
	DrainPerSec   float64
}

// Controller is the global enqueue-admission gate. Every non-heartbeat
// message passes CanEnqueue before it is queued for processing; heartbeats
// bypass it entirely.
type Controller struct {
	maxQueueSize int64
	logger       *slog.Logger

	currentSize atomic.Int64
	enqueued    atomic.Int64 // cumulative, for arrival rate
	drained     atomic.Int64 // cumulative, for drain rate
	dropped     atomic.Int64

	level atomic.Int32

	mu       sync.Mutex
	onChange []LevelChangeFunc
	rates    Rates
	lastEnq  int64
	lastDrn  int64

	shedding atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(maxQueueSize int, logger *slog.Logger) *Controller {
	if maxQueueSize <= 0 {
		maxQueueSize = 10000
	}
	c := &Controller{
		maxQueueSize: int64(maxQueueSize),
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
	c.wg.Add(1)
	go c.tickLoop()
	return c
}

// CanEnqueue reports whether the queue has room. It does not reserve a
// slot; callers that get true must follow with Enqueued() once the message
// is actually queued.
func (c *Controller) CanEnqueue() bool {
	return c.currentSize.Load() < c.maxQueueSize
}

// Enqueued records one admitted message. Returns false (and counts a drop)
// if the queue raced to full between CanEnqueue and here. A false
// CanEnqueue is never followed by a silent accept.
func (c *Controller) Enqueued() bool {
	for {
		cur := c.currentSize.Load()
		if cur >= c.maxQueueSize {
			c.dropped.Add(1)
			return false
		}
		if c.currentSize.CompareAndSwap(cur, cur+1) {
			c.enqueued.Add(1)
			c.reclassify()
			return true
		}
	}
}

// Drained records one message leaving the queue.
func (c *Controller) Drained() {
	if c.currentSize.Add(-1) < 0 {
		c.currentSize.Store(0)
	}
	c.drained.Add(1)
	c.reclassify()
}

// Dropped records an explicit shed (admission refused).
func (c *Controller) Dropped() {
	c.dropped.Add(1)
}

// DroppedCount returns the cumulative droppedMessages metric.
func (c *Controller) DroppedCount() int64 { return c.dropped.Load() }

// Level returns the current classification.
func (c *Controller) Level() Level { return Level(c.level.Load()) }

// Shedding reports whether Emergency shedding of non-heartbeat messages is
// active.
func (c *Controller) Shedding() bool { return c.shedding.Load() }

// OnLevelChange registers a transition subscriber.
func (c *Controller) OnLevelChange(fn LevelChangeFunc) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Rates returns the last 1 Hz arrival/drain computation.
func (c *Controller) Rates() Rates {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rates
}

func (c *Controller) reclassify() {
	load := float64(c.currentSize.Load()) / float64(c.maxQueueSize)
	next := levelFor(load)
	prev := Level(c.level.Swap(int32(next)))
	if prev == next {
		return
	}

	c.shedding.Store(next == Emergency)

	if c.logger != nil {
		c.logger.Warn("BACKPRESSURE_LEVEL_CHANGED", "from", prev.String(), "to", next.String(), "load", load)
		if next == Emergency {
			c.logger.Error("QUEUE_OVERFLOW", "size", c.currentSize.Load(), "max", c.maxQueueSize)
		}
	}

	c.mu.Lock()
	subs := append([]LevelChangeFunc(nil), c.onChange...)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(prev, next)
	}
}

// tickLoop computes arrival/drain rates once per second.
func (c *Controller) tickLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			enq := c.enqueued.Load()
			drn := c.drained.Load()
			c.mu.Lock()
			c.rates = Rates{
				ArrivalPerSec: float64(enq - c.lastEnq),
				DrainPerSec:   float64(drn - c.lastDrn),
			}
			c.lastEnq = enq
			c.lastDrn = drn
			c.mu.Unlock()
		}
	}
}

func (c *Controller) Shutdown() {
	close(c.stopCh)
	c.wg.Wait()
}
