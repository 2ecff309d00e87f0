package readiness

import (
	"sync"
	"time"

	"github.com/rickgao/shardgate/internal/shard"
)

// EventKind identifies a readiness notification.
type EventKind int

const (
	EventShardReady EventKind = iota
	EventShardResumed
	EventShardDisconnect
	EventReady
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventShardReady:
		return "shard_ready"
	case EventShardResumed:
		return "shard_resumed"
	case EventShardDisconnect:
		return "shard_disconnect"
	case EventReady:
		return "ready"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a readiness notification. ShardID is -1 for global events.
type Event struct {
	Kind    EventKind
	ShardID int
	Err     error
	At      time.Time
}

// Notifier receives events in emission order. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Fleet is the aggregator's view of every known shard.
type Fleet interface {
	Shards() []shard.Shard
}

// Metrics receives aggregator instrumentation.
type Metrics interface {
	Signal(kind EventKind)
	GlobalReady(ready bool)
}

type nopMetrics struct{}

func (nopMetrics) Signal(EventKind) {}
func (nopMetrics) GlobalReady(bool) {}

// State is the global readiness owned by the manager. Only the Aggregator
// mutates it.
type State struct {
	mu        sync.RWMutex
	ready     bool
	startTime time.Time
}

// Ready reports whether every shard was ready at the last transition.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// StartTime returns when the fleet last became ready, or the zero time.
func (s *State) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// Uptime returns how long the fleet has been ready as of now.
func (s *State) Uptime(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return 0
	}
	return now.Sub(s.startTime)
}

func (s *State) set(ready bool, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
	if ready {
		s.startTime = at
	} else {
		s.startTime = time.Time{}
	}
}
