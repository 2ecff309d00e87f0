package scheduler

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/shardgate/internal/clock"
	"github.com/rickgao/shardgate/internal/shard"
)

// Scheduler admits shard connection attempts. queue, lastDispatch and
// pendingRetry are guarded together by mu.
type Scheduler struct {
	cfg     Config
	fleet   Fleet
	clock   clock.Clock
	logger  *slog.Logger
	metrics Metrics

	mu           sync.Mutex
	queue        []shard.Shard
	lastDispatch time.Time
	pendingRetry clock.Timer
	limit        int
	dispatched   int64
	stopped      bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a Scheduler. Zero durations in cfg fall back to DefaultConfig.
func New(cfg Config, fleet Fleet, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = def.MinSpacing
	}
	if cfg.Reservation <= 0 {
		cfg.Reservation = def.Reservation
	}
	if cfg.RateLimitPoll <= 0 {
		cfg.RateLimitPoll = def.RateLimitPoll
	}
	if cfg.BucketPoll <= 0 {
		cfg.BucketPoll = def.BucketPoll
	}

	s := &Scheduler{
		cfg:     cfg,
		fleet:   fleet,
		clock:   clock.Real(),
		logger:  slog.Default(),
		metrics: nopMetrics{},
		limit:   1,
	}
	if cfg.Mode == ModeConcurrencyBucket && cfg.ConcurrencyLimit > 1 {
		s.limit = cfg.ConcurrencyLimit
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the admission mode.
func (s *Scheduler) Mode() Mode {
	return s.cfg.Mode
}

// RequestConnect admits sh now or queues it. Shards that are not
// disconnected are already in flight and are ignored.
func (s *Scheduler) RequestConnect(sh shard.Shard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if st := sh.Status(); st != shard.StatusDisconnected {
		s.logger.Debug("ignoring connect request for active shard",
			"shard_id", sh.ID(),
			"status", st.String(),
		)
		return
	}

	if s.cfg.Mode == ModeGlobalRateLimit {
		now := s.clock.Now()
		if sh.SessionID() != "" || (s.fleet.ConnectingCount() == 0 && s.windowOpenLocked(now)) {
			s.dispatchLocked(sh, true, now)
			return
		}
	}

	if !slices.ContainsFunc(s.queue, func(q shard.Shard) bool { return q.ID() == sh.ID() }) {
		s.queue = append(s.queue, sh)
		s.metrics.QueueDepth(len(s.queue))
		s.logger.Debug("shard queued for admission",
			"shard_id", sh.ID(),
			"queue_len", len(s.queue),
		)
	}

	s.tryAdmitLocked()
}

// TryAdmit attempts to dispatch the head of the queue.
func (s *Scheduler) TryAdmit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.tryAdmitLocked()
}

// OnRateLimitAcknowledged opens the next window relative to now, replacing
// the local reservation with the remote service's grant.
func (s *Scheduler) OnRateLimitAcknowledged() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.lastDispatch = s.clock.Now()
	s.tryAdmitLocked()
}

// SetConcurrencyLimit replaces the bucket size. Ignored in rate-limit mode.
func (s *Scheduler) SetConcurrencyLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Mode != ModeConcurrencyBucket {
		return
	}
	if n < 1 {
		n = 1
	}
	if n == s.limit {
		return
	}

	s.logger.Info("concurrency limit changed", "from", s.limit, "to", n)
	s.limit = n
	if !s.stopped {
		s.tryAdmitLocked()
	}
}

// Stop cancels the pending retry. Later calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.pendingRetry != nil {
		s.pendingRetry.Stop()
		s.pendingRetry = nil
	}
}

// QueueLen returns the number of queued shards.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// RetryPending reports whether a retry timer is outstanding.
func (s *Scheduler) RetryPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingRetry != nil
}

// Snapshot returns the current scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, len(s.queue))
	for i, sh := range s.queue {
		ids[i] = sh.ID()
	}

	return Snapshot{
		Mode:             s.cfg.Mode.String(),
		ConcurrencyLimit: s.limit,
		Queued:           ids,
		LastDispatch:     s.lastDispatch,
		RetryPending:     s.pendingRetry != nil,
		Dispatched:       s.dispatched,
	}
}

func (s *Scheduler) tryAdmitLocked() {
	s.pruneLocked()
	if len(s.queue) == 0 {
		return
	}

	now := s.clock.Now()
	poll := s.cfg.RateLimitPoll

	switch s.cfg.Mode {
	case ModeConcurrencyBucket:
		poll = s.cfg.BucketPoll
		if s.fleet.ConnectingCount() < s.limit {
			s.dispatchLocked(s.popLocked(), false, now)
		}
	default:
		if s.windowOpenLocked(now) {
			s.dispatchLocked(s.popLocked(), false, now)
		}
	}

	if len(s.queue) > 0 {
		s.scheduleRetryLocked(poll)
	}
}

func (s *Scheduler) windowOpenLocked(now time.Time) bool {
	return now.Sub(s.lastDispatch) >= s.cfg.MinSpacing
}

// pruneLocked drops queued shards that left the disconnected state while
// waiting, so a dispatch never spends a window on a no-op Connect.
func (s *Scheduler) pruneLocked() {
	n := len(s.queue)
	s.queue = slices.DeleteFunc(s.queue, func(sh shard.Shard) bool {
		return sh.Status() != shard.StatusDisconnected
	})
	if len(s.queue) != n {
		s.metrics.QueueDepth(len(s.queue))
		s.logger.Debug("dropped active shards from admission queue",
			"dropped", n-len(s.queue),
			"queue_len", len(s.queue),
		)
	}
}

func (s *Scheduler) popLocked() shard.Shard {
	sh := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.metrics.QueueDepth(len(s.queue))
	return sh
}

func (s *Scheduler) dispatchLocked(sh shard.Shard, fast bool, now time.Time) {
	sh.Connect()
	if s.cfg.Mode == ModeGlobalRateLimit {
		s.lastDispatch = now.Add(s.cfg.Reservation)
	}
	s.dispatched++
	s.metrics.Dispatched(fast)

	s.logger.Debug("shard dispatched",
		"shard_id", sh.ID(),
		"fast_path", fast,
		"resume", sh.SessionID() != "",
		"queue_len", len(s.queue),
	)
}

func (s *Scheduler) scheduleRetryLocked(d time.Duration) {
	if s.pendingRetry != nil {
		return
	}
	s.pendingRetry = s.clock.AfterFunc(d, s.retry)
	s.metrics.RetryScheduled()
}

func (s *Scheduler) retry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingRetry = nil
	if s.stopped {
		return
	}
	s.tryAdmitLocked()
}
