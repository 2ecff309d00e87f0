// Package cache provides a bounded keyed container whose eviction skips a
// pinned key set.
//
// Entries are kept in eviction order. With a capacity set, adding a new
// non-pinned key evicts the oldest non-pinned entries until the non-pinned
// entries fit in capacity minus the number of pinned keys; pinned entries
// are never evicted. The eviction order is chosen by a Policy:
//
//   - [InsertionOrder]: oldest insertion first (default)
//   - [Recency]: least recently added, updated or read first
//
// Every Add and Update stamps the entry's last-touched time.
//
//	c := cache.New[string, *User](cache.Options[string]{
//	    Capacity: 10000,
//	    Pinned:   []string{"owner"},
//	})
//	c.Add(u.ID, u)
package cache
