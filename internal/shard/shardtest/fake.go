// Package shardtest provides an in-memory shard.Shard for tests.
package shardtest

import (
	"sync"
	"sync/atomic"

	"github.com/rickgao/shardgate/internal/shard"
)

// Fake is a shard whose lifecycle is driven by the test. Connect only moves
// it to StatusConnecting and records the call.
type Fake struct {
	id       int
	status   atomic.Int32
	connects atomic.Int32

	mu        sync.Mutex
	sessionID string
	seq       int64
	closed    bool
	onConnect func(*Fake)
	onClose   func(*Fake)
}

// New returns a disconnected fake shard.
func New(id int) *Fake {
	return &Fake{id: id}
}

func (f *Fake) ID() int { return f.id }

func (f *Fake) Status() shard.Status { return shard.Status(f.status.Load()) }

func (f *Fake) SetStatus(s shard.Status) { f.status.Store(int32(s)) }

func (f *Fake) SessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionID
}

func (f *Fake) SetSessionID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionID = id
}

// SetSession sets the session ID and sequence number.
func (f *Fake) SetSession(id string, seq int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionID = id
	f.seq = seq
}

func (f *Fake) Seq() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Close marks the fake closed and disconnected, then runs the OnClose hook.
// Without a hook it reports nothing; tests deliver the resulting signal
// themselves.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	fn := f.onClose
	f.mu.Unlock()
	f.SetStatus(shard.StatusDisconnected)
	if fn != nil {
		fn(f)
	}
	return nil
}

// OnClose installs a hook run at the end of every Close call.
func (f *Fake) OnClose(fn func(*Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClose = fn
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Connecting() bool { return f.Status().Connecting() }

func (f *Fake) Ready() bool { return f.Status() == shard.StatusReady }

// OnConnect installs a hook run at the end of every Connect call.
func (f *Fake) OnConnect(fn func(*Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = fn
}

func (f *Fake) Connect() {
	f.SetStatus(shard.StatusConnecting)
	f.connects.Add(1)

	f.mu.Lock()
	fn := f.onConnect
	f.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// Connects returns how many times Connect was called.
func (f *Fake) Connects() int { return int(f.connects.Load()) }

var _ shard.Shard = (*Fake)(nil)

// Fleet is a fixed set of shards satisfying the scheduler and aggregator
// fleet views.
type Fleet struct {
	mu     sync.Mutex
	shards []shard.Shard
}

// NewFleet returns a fleet over the given shards.
func NewFleet(shards ...shard.Shard) *Fleet {
	return &Fleet{shards: shards}
}

// Add appends a shard to the fleet.
func (fl *Fleet) Add(s shard.Shard) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.shards = append(fl.shards, s)
}

// Shards returns a copy of the fleet's shards.
func (fl *Fleet) Shards() []shard.Shard {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	out := make([]shard.Shard, len(fl.shards))
	copy(out, fl.shards)
	return out
}

// ConnectingCount counts shards that occupy a session-start slot.
func (fl *Fleet) ConnectingCount() int {
	n := 0
	for _, s := range fl.Shards() {
		if s.Connecting() {
			n++
		}
	}
	return n
}
