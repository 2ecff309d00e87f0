package scheduler

import "time"

// Mode selects the admission rule.
type Mode int

const (
	ModeGlobalRateLimit Mode = iota
	ModeConcurrencyBucket
)

func (m Mode) String() string {
	switch m {
	case ModeGlobalRateLimit:
		return "global-rate-limit"
	case ModeConcurrencyBucket:
		return "concurrency-bucket"
	default:
		return "unknown"
	}
}

// Config configures a Scheduler.
type Config struct {
	Mode             Mode
	ConcurrencyLimit int           // Bucket size (bucket mode only; forced to 1 otherwise)
	MinSpacing       time.Duration // Hard floor between dispatches (rate-limit mode)
	Reservation      time.Duration // lastDispatch offset applied on each dispatch
	RateLimitPoll    time.Duration // Retry interval in rate-limit mode
	BucketPoll       time.Duration // Retry interval in bucket mode
}

// DefaultConfig returns the rate-limit mode defaults.
func DefaultConfig() Config {
	return Config{
		Mode:             ModeGlobalRateLimit,
		ConcurrencyLimit: 1,
		MinSpacing:       5 * time.Second,
		Reservation:      7500 * time.Millisecond,
		RateLimitPoll:    1 * time.Second,
		BucketPoll:       250 * time.Millisecond,
	}
}

// Fleet is the scheduler's view of every shard the manager owns.
type Fleet interface {
	// ConnectingCount returns how many shards currently occupy a
	// session-start slot.
	ConnectingCount() int
}

// FleetFunc adapts a function to Fleet.
type FleetFunc func() int

func (f FleetFunc) ConnectingCount() int { return f() }

// Metrics receives scheduler instrumentation.
type Metrics interface {
	Dispatched(fast bool)
	QueueDepth(n int)
	RetryScheduled()
}

type nopMetrics struct{}

func (nopMetrics) Dispatched(bool) {}
func (nopMetrics) QueueDepth(int)  {}
func (nopMetrics) RetryScheduled() {}

// Snapshot is a point-in-time view of scheduler state.
type Snapshot struct {
	Mode             string    `json:"mode"`
	ConcurrencyLimit int       `json:"concurrency_limit"`
	Queued           []int     `json:"queued"`
	LastDispatch     time.Time `json:"last_dispatch"`
	RetryPending     bool      `json:"retry_pending"`
	Dispatched       int64     `json:"dispatched"`
}
