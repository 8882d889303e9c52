package model

import "time"

// PreloadType classifies why a task was enqueued.
type PreloadType int8

const (
	PreloadImmediate PreloadType = iota + 1
	PreloadScheduled
	PreloadConditional
	PreloadBatch
	PreloadAdaptive
)

// PreloadPriority orders the four preloader bands, highest first.
type PreloadPriority int8

const (
	PriorityLow PreloadPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Loader fetches the value to cache for a given key.
type Loader func() (any, error)

// Condition gates whether a conditional task is ready to run.
type Condition func() bool

// PreloadTask is a unit of warm-up work submitted to the Preloader.
// Completion is terminal: a finished task is never resubmitted with the
// same identity, only retried up to MaxRetries while RetryCount < MaxRetries.
type PreloadTask struct {
	ID            string
	Key           string
	Category      string
	Loader        Loader
	Condition     Condition
	ScheduledTime *time.Time
	Type          PreloadType
	Priority      PreloadPriority
	TTL           time.Duration
	MaxRetries    int
	RetryCount    int
}

// Ready reports whether a scheduled task's time has arrived.
func (t *PreloadTask) Ready(now time.Time) bool {
	return t.ScheduledTime == nil || !now.Before(*t.ScheduledTime)
}

// CanRetry reports whether another retry attempt is permitted.
func (t *PreloadTask) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}
