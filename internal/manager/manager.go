package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/shardgate/internal/cache"
	"github.com/rickgao/shardgate/internal/clock"
	"github.com/rickgao/shardgate/internal/events"
	"github.com/rickgao/shardgate/internal/readiness"
	"github.com/rickgao/shardgate/internal/scheduler"
	"github.com/rickgao/shardgate/internal/session"
	"github.com/rickgao/shardgate/internal/shard"
)

// Manager owns the shard fleet.
type Manager struct {
	cfg     Config
	factory Factory
	store   session.Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics Metrics

	sched   *scheduler.Scheduler
	agg     *readiness.Aggregator
	events  *events.Queue[readiness.Event]
	objects *cache.Cache[string, shard.Object]

	mu         sync.RWMutex
	shards     map[int]Shard
	order      []int
	backoff    map[int]time.Duration
	reconnects map[int]clock.Timer
	stopping   bool

	// closing holds shards closed by Stop whose disconnect report is
	// still outstanding; closed is signalled when it empties.
	closing map[int]struct{}
	closed  chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source for every component.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink for every component.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// New creates a Manager. store may be nil, in which case sessions are not
// persisted.
func New(cfg Config, factory Factory, store session.Store, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = max(def.ReconnectMaxDelay, cfg.ReconnectBaseDelay)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}

	m := &Manager{
		cfg:        cfg,
		factory:    factory,
		store:      store,
		clock:      clock.Real(),
		logger:     slog.Default(),
		shards:     make(map[int]Shard),
		backoff:    make(map[int]time.Duration),
		reconnects: make(map[int]clock.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}

	schedOpts := []scheduler.Option{
		scheduler.WithClock(m.clock),
		scheduler.WithLogger(m.logger.With("component", "scheduler")),
	}
	aggOpts := []readiness.Option{
		readiness.WithClock(m.clock),
		readiness.WithLogger(m.logger.With("component", "readiness")),
	}
	var cacheMetrics cache.Metrics
	if m.metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(m.metrics))
		aggOpts = append(aggOpts, readiness.WithMetrics(m.metrics))
		cacheMetrics = m.metrics
	}

	m.events = events.NewQueue[readiness.Event](cfg.EventBuffer)
	m.sched = scheduler.New(cfg.Scheduler, m, schedOpts...)
	m.agg = readiness.New(m, readiness.NotifierFunc(func(e readiness.Event) {
		m.events.Push(e)
	}), aggOpts...)
	m.objects = cache.New[string, shard.Object](cache.Options[string]{
		Capacity: cfg.CacheCapacity,
		Pinned:   cfg.CachePinned,
		Policy:   cfg.CachePolicy,
		Clock:    m.clock,
		Metrics:  cacheMetrics,
	})
	return m
}

// Start spawns ids in order.
func (m *Manager) Start(ctx context.Context, ids []int) error {
	for _, id := range ids {
		if err := m.Spawn(ctx, id); err != nil {
			return fmt.Errorf("spawn shard %d: %w", id, err)
		}
	}
	m.logger.Info("shard manager started",
		"shards", len(ids),
		"mode", m.sched.Mode().String(),
	)
	return nil
}

// Spawn creates shard id on first use, seeding its session from the store,
// and requests a connection for it if it is disconnected. Requests for a
// shard in any other status are no-ops.
func (m *Manager) Spawn(ctx context.Context, id int) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return ErrStopped
	}
	sh, exists := m.shards[id]
	if !exists {
		sh = m.factory(id, m)
		m.shards[id] = sh
		m.order = append(m.order, id)
		slices.Sort(m.order)
	}
	if t, pending := m.reconnects[id]; pending {
		t.Stop()
		delete(m.reconnects, id)
	}
	m.mu.Unlock()

	if !exists {
		m.seedSession(ctx, sh)
	}

	if status := sh.Status(); status != shard.StatusDisconnected {
		m.logger.Debug("spawn ignored", "shard_id", id, "status", status.String())
		return nil
	}
	m.sched.RequestConnect(sh)
	return nil
}

func (m *Manager) seedSession(ctx context.Context, sh Shard) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	rec, ok, err := m.store.Load(ctx, sh.ID())
	if err != nil {
		m.logger.Warn("failed to load session", "shard_id", sh.ID(), "error", err)
		return
	}
	if ok && rec.SessionID != "" {
		sh.SetSession(rec.SessionID, rec.Seq)
		m.logger.Debug("seeded session", "shard_id", sh.ID(), "session_id", rec.SessionID, "seq", rec.Seq)
	}
}

// Stop cancels pending reconnects, stops the scheduler and closes every
// shard. It waits, bounded by ctx, for the closed shards to report their
// disconnect so those events are queued before the event queue closes.
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping shard manager")

	m.mu.Lock()
	m.stopping = true
	for id, t := range m.reconnects {
		t.Stop()
		delete(m.reconnects, id)
	}
	shards := m.orderedLocked()
	m.closing = make(map[int]struct{})
	m.closed = make(chan struct{})
	m.mu.Unlock()

	m.sched.Stop()

	var errs []error
	for _, sh := range shards {
		if ctx.Err() != nil {
			m.logger.Warn("shutdown timeout, skipping remaining shards")
			errs = append(errs, ctx.Err())
			break
		}
		// A shard that disconnects concurrently reports after setting its
		// status, and settleClose needs m.mu, so check and insert together.
		m.mu.Lock()
		if sh.Status() != shard.StatusDisconnected {
			m.closing[sh.ID()] = struct{}{}
		}
		m.mu.Unlock()
		if err := sh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shard %d: %w", sh.ID(), err))
		}
	}

	if err := m.awaitClosed(ctx); err != nil {
		errs = append(errs, err)
	}

	m.events.Close()
	m.logger.Info("shard manager stopped")
	return errors.Join(errs...)
}

// awaitClosed blocks until every shard in m.closing has reported its
// disconnect, or ctx is done.
func (m *Manager) awaitClosed(ctx context.Context) error {
	m.mu.Lock()
	n := len(m.closing)
	if n == 0 {
		m.mu.Unlock()
		return nil
	}
	done := m.closed
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		pending := len(m.closing)
		m.mu.Unlock()
		m.logger.Warn("shutdown timeout, dropping unreported disconnects", "shards", pending)
		return fmt.Errorf("await shard disconnects: %w", ctx.Err())
	}
}

// settleClose marks shard id's disconnect as reported during Stop.
func (m *Manager) settleClose(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.closing[id]; !ok {
		return
	}
	delete(m.closing, id)
	if len(m.closing) == 0 {
		close(m.closed)
	}
}

// ShardReady records the fresh session and forwards the signal.
func (m *Manager) ShardReady(id int) {
	m.resetBackoff(id)
	m.persistSession(id)
	m.agg.HandleReady(id)
}

// ShardResumed forwards the signal.
func (m *Manager) ShardResumed(id int) {
	m.resetBackoff(id)
	m.agg.HandleResume(id)
}

// ShardDisconnected persists the shard's session, forwards the signal and
// arms a reconnect unless the shard was closed.
func (m *Manager) ShardDisconnected(id int, err error) {
	defer m.settleClose(id)
	m.persistSession(id)
	m.agg.HandleDisconnect(id, err)

	if !m.cfg.AutoReconnect || errors.Is(err, shard.ErrClosed) {
		return
	}
	m.scheduleReconnect(id, err)
}

// SessionStartAcknowledged opens the next session-start window.
func (m *Manager) SessionStartAcknowledged(id int) {
	m.sched.OnRateLimitAcknowledged()
}

// Dispatch caches obj.
func (m *Manager) Dispatch(shardID int, obj shard.Object) {
	if evicted := m.objects.Add(obj.ID, obj); len(evicted) > 0 {
		m.logger.Debug("evicted objects", "shard_id", shardID, "count", len(evicted))
	}
}

func (m *Manager) scheduleReconnect(id int, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopping {
		return
	}
	if _, pending := m.reconnects[id]; pending {
		return
	}

	delay := m.backoff[id]
	if delay <= 0 {
		delay = m.cfg.ReconnectBaseDelay
	}
	m.backoff[id] = min(delay*2, m.cfg.ReconnectMaxDelay)

	m.logger.Info("scheduling reconnect", "shard_id", id, "delay", delay, "error", cause)
	m.reconnects[id] = m.clock.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
		defer cancel()
		if err := m.Spawn(ctx, id); err != nil && !errors.Is(err, ErrStopped) {
			m.logger.Warn("reconnect failed", "shard_id", id, "error", err)
		}
	})
}

func (m *Manager) resetBackoff(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backoff, id)
}

// persistSession saves the shard's current session, or deletes the stored
// one when the shard no longer has a session.
func (m *Manager) persistSession(id int) {
	if m.store == nil {
		return
	}
	sh, ok := m.Get(id)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StoreTimeout)
	defer cancel()

	var err error
	if sid := sh.SessionID(); sid != "" {
		err = m.store.Save(ctx, session.Record{
			ShardID:   id,
			SessionID: sid,
			Seq:       sh.Seq(),
			UpdatedAt: m.clock.Now(),
		})
	} else {
		err = m.store.Delete(ctx, id)
	}
	if err != nil {
		m.logger.Warn("failed to persist session", "shard_id", id, "error", err)
	}
}

// Get returns shard id.
func (m *Manager) Get(id int) (Shard, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sh, ok := m.shards[id]
	return sh, ok
}

// Shards returns every shard ordered by ID.
func (m *Manager) Shards() []shard.Shard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]shard.Shard, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.shards[id])
	}
	return out
}

// ConnectingCount counts shards that occupy a session-start slot.
func (m *Manager) ConnectingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sh := range m.shards {
		if sh.Connecting() {
			n++
		}
	}
	return n
}

func (m *Manager) orderedLocked() []Shard {
	out := make([]Shard, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.shards[id])
	}
	return out
}

// Events returns the readiness event queue. It is closed by Stop.
func (m *Manager) Events() *events.Queue[readiness.Event] { return m.events }

// State returns the global readiness state.
func (m *Manager) State() *readiness.State { return m.agg.State() }

// Scheduler returns the admission scheduler.
func (m *Manager) Scheduler() *scheduler.Scheduler { return m.sched }

// Cache returns the object cache.
func (m *Manager) Cache() *cache.Cache[string, shard.Object] { return m.objects }

// Stats returns fleet statistics.
func (m *Manager) Stats() Stats {
	st := Stats{
		GlobalReady:   m.agg.State().Ready(),
		StartTime:     m.agg.State().StartTime(),
		QueueLen:      m.sched.QueueLen(),
		CacheSize:     m.objects.Len(),
		PendingEvents: m.events.Len(),
	}
	for _, sh := range m.Shards() {
		st.Shards++
		switch s := sh.Status(); {
		case s == shard.StatusReady:
			st.Ready++
		case s.Connecting():
			st.Connecting++
		default:
			st.Disconnected++
		}
	}
	return st
}

// ShardStats returns per-shard statistics ordered by ID.
func (m *Manager) ShardStats() []ShardStat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ShardStat, 0, len(m.order))
	for _, id := range m.order {
		sh := m.shards[id]
		_, reconnecting := m.reconnects[id]
		out = append(out, ShardStat{
			ID:             id,
			Status:         sh.Status().String(),
			SessionID:      sh.SessionID(),
			Seq:            sh.Seq(),
			ReconnectDelay: m.backoff[id],
			Reconnecting:   reconnecting,
		})
	}
	return out
}

var _ Sink = (*Manager)(nil)
