package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rickgao/shardgate/internal/clock"
)

// Metrics receives cache instrumentation.
type Metrics interface {
	Evicted(n int)
	Size(n int)
}

type nopMetrics struct{}

func (nopMetrics) Evicted(int) {}
func (nopMetrics) Size(int)    {}

// Options configures a Cache.
type Options[K comparable] struct {
	Capacity int    // 0 means unbounded
	Pinned   []K    // keys exempt from eviction
	Policy   Policy // nil means InsertionOrder
	Clock    clock.Clock
	Metrics  Metrics
}

type entry[K comparable, V any] struct {
	key     K
	val     V
	touched time.Time
}

// Cache is a bounded container with pinned keys. It is safe for
// concurrent use.
type Cache[K comparable, V any] struct {
	capacity int
	policy   Policy
	clock    clock.Clock
	metrics  Metrics

	mu     sync.Mutex
	ll     *list.List // front = next eviction candidate
	items  map[K]*list.Element
	pinned map[K]struct{}
}

// New creates a Cache.
func New[K comparable, V any](opts Options[K]) *Cache[K, V] {
	if opts.Policy == nil {
		opts.Policy = InsertionOrder()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Capacity < 0 {
		opts.Capacity = 0
	}

	c := &Cache[K, V]{
		capacity: opts.Capacity,
		policy:   opts.Policy,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
	}
	c.pinned = toSet(opts.Pinned)
	return c
}

// Add inserts or overwrites key. Inserting a new key may evict older
// non-pinned entries. It returns the evicted keys in eviction order.
func (c *Cache[K, V]) Add(key K, val V) []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.items[key]; ok {
		c.overwriteLocked(el, val, now)
		return nil
	}

	evicted := c.makeRoomLocked(key)
	c.items[key] = c.ll.PushBack(&entry[K, V]{key: key, val: val, touched: now})
	c.metrics.Size(c.ll.Len())
	return evicted
}

// Update replaces the value of key, keeping its position and pin status.
// A missing key is added.
func (c *Cache[K, V]) Update(key K, val V) []K {
	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		c.overwriteLocked(el, val, c.clock.Now())
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.Add(key, val)
}

// Get returns the value for key. Under the Recency policy it counts as a use.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.policy.Promote(OpGet) {
		c.ll.MoveToBack(el)
	}
	return el.Value.(*entry[K, V]).val, true
}

// Peek returns the value for key without affecting eviction order.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*entry[K, V]).val, true
}

// Touched returns when key was last added or updated.
func (c *Cache[K, V]) Touched(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return time.Time{}, false
	}
	return el.Value.(*entry[K, V]).touched, true
}

// Delete removes key, pinned or not. It reports whether key was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.ll.Remove(el)
	delete(c.items, key)
	c.metrics.Size(c.ll.Len())
	return true
}

// SetPinned replaces the pinned key set. Existing entries are not evicted.
func (c *Cache[K, V]) SetPinned(keys []K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = toSet(keys)
}

// IsPinned reports whether key is in the pinned set.
func (c *Cache[K, V]) IsPinned(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pinned[key]
	return ok
}

// Pinned returns the pinned key set in no particular order.
func (c *Cache[K, V]) Pinned() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]K, 0, len(c.pinned))
	for k := range c.pinned {
		out = append(out, k)
	}
	return out
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Capacity returns the configured capacity, 0 if unbounded.
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Policy returns the eviction policy.
func (c *Cache[K, V]) Policy() Policy {
	return c.policy
}

// Keys returns all keys, next eviction candidate first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]K, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[K, V]).key)
	}
	return out
}

func (c *Cache[K, V]) overwriteLocked(el *list.Element, val V, now time.Time) {
	e := el.Value.(*entry[K, V])
	e.val = val
	e.touched = now
	if c.policy.Promote(OpUpdate) {
		c.ll.MoveToBack(el)
	}
}

// makeRoomLocked evicts non-pinned entries until a new entry for key fits.
// A non-pinned key must fit in capacity minus the whole pinned set; a
// pinned key only needs the total to stay within capacity. Once only
// pinned entries remain the insert proceeds regardless.
func (c *Cache[K, V]) makeRoomLocked(key K) []K {
	if c.capacity == 0 {
		return nil
	}

	_, isPinned := c.pinned[key]
	budget := c.capacity - len(c.pinned)
	unpinned := c.ll.Len() - c.pinnedPresentLocked()
	full := func() bool {
		if isPinned {
			return c.ll.Len()+1 > c.capacity
		}
		return unpinned+1 > budget
	}

	var evicted []K
	for full() {
		el := c.oldestUnpinnedLocked()
		if el == nil {
			break
		}
		e := el.Value.(*entry[K, V])
		c.ll.Remove(el)
		delete(c.items, e.key)
		evicted = append(evicted, e.key)
		unpinned--
	}

	if len(evicted) > 0 {
		c.metrics.Evicted(len(evicted))
	}
	return evicted
}

func (c *Cache[K, V]) pinnedPresentLocked() int {
	n := 0
	for k := range c.pinned {
		if _, ok := c.items[k]; ok {
			n++
		}
	}
	return n
}

func (c *Cache[K, V]) oldestUnpinnedLocked() *list.Element {
	for el := c.ll.Front(); el != nil; el = el.Next() {
		if _, ok := c.pinned[el.Value.(*entry[K, V]).key]; !ok {
			return el
		}
	}
	return nil
}

func toSet[K comparable](keys []K) map[K]struct{} {
	set := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
