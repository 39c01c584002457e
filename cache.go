package relic

import (
	"runtime"
	"sync"
	"weak"
)

// idCache is the per-type identity map from primary key to live record
// instance. Entries hold their instances weakly: while any external reference
// to the instance for a key is alive, every construction request for that key
// returns the same instance; once collected, the entry is dropped and a later
// request builds a fresh instance with an empty shadow.
//
// The mutex exists only because entry removal runs on the runtime's cleanup
// goroutine; the rest of relic is single-session.
type idCache struct {
	mu      sync.Mutex
	entries map[int64]weak.Pointer[Record]
}

func newIDCache() *idCache {
	return &idCache{entries: map[int64]weak.Pointer[Record]{}}
}

// construct returns the live instance for key, merging attrs into its shadow,
// or registers and returns a new instance whose shadow holds the key plus
// attrs.
func (c *idCache) construct(t *Type, key int64, attrs Row) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wp, ok := c.entries[key]; ok {
		if r := wp.Value(); r != nil {
			for k, v := range attrs {
				r.shadow[k] = v
			}
			return r
		}
	}

	r := &Record{typ: t, id: key, shadow: make(map[string]any, len(attrs)+1)}
	r.shadow["id"] = key
	for k, v := range attrs {
		r.shadow[k] = v
	}

	c.entries[key] = weak.Make(r)
	runtime.AddCleanup(r, func(k int64) { c.drop(k) }, key)
	return r
}

// drop removes the entry for key unless a newer live instance has replaced
// it since the collected one was registered.
func (c *idCache) drop(key int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wp, ok := c.entries[key]; ok && wp.Value() == nil {
		delete(c.entries, key)
	}
}
