package readiness

import (
	"log/slog"
	"sync"

	"github.com/rickgao/shardgate/internal/clock"
)

// Aggregator applies shard signals to the global State. Transitions are
// serialized so each global edge is emitted exactly once.
type Aggregator struct {
	fleet    Fleet
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	metrics  Metrics

	mu    sync.Mutex
	state *State
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) {
		a.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// New creates an Aggregator. The global state starts not ready.
func New(fleet Fleet, notifier Notifier, opts ...Option) *Aggregator {
	if notifier == nil {
		notifier = NotifierFunc(func(Event) {})
	}

	a := &Aggregator{
		fleet:    fleet,
		notifier: notifier,
		clock:    clock.Real(),
		logger:   slog.Default(),
		metrics:  nopMetrics{},
		state:    &State{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the global readiness state.
func (a *Aggregator) State() *State {
	return a.state
}

// HandleReady processes a ready signal from shard id.
func (a *Aggregator) HandleReady(id int) {
	a.handleUp(EventShardReady, id)
}

// HandleResume processes a resumed signal from shard id.
func (a *Aggregator) HandleResume(id int) {
	a.handleUp(EventShardResumed, id)
}

// HandleDisconnect processes a disconnect signal from shard id. err is
// forwarded unchanged.
func (a *Aggregator) HandleDisconnect(id int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	a.emit(Event{Kind: EventShardDisconnect, ShardID: id, Err: err, At: now})

	if !a.state.Ready() {
		return
	}
	for _, s := range a.fleet.Shards() {
		if s.Ready() {
			return
		}
	}

	a.state.set(false, now)
	a.metrics.GlobalReady(false)
	a.logger.Warn("all shards disconnected", "last_shard_id", id, "error", err)
	a.emit(Event{Kind: EventDisconnect, ShardID: -1, At: now})
}

func (a *Aggregator) handleUp(kind EventKind, id int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	a.emit(Event{Kind: kind, ShardID: id, At: now})

	if a.state.Ready() {
		return
	}
	shards := a.fleet.Shards()
	for _, s := range shards {
		if !s.Ready() {
			return
		}
	}

	a.state.set(true, now)
	a.metrics.GlobalReady(true)
	a.logger.Info("all shards ready", "shards", len(shards))
	a.emit(Event{Kind: EventReady, ShardID: -1, At: now})
}

func (a *Aggregator) emit(e Event) {
	a.metrics.Signal(e.Kind)
	a.notifier.Notify(e)
}
