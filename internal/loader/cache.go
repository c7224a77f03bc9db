package loader

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"imgload/internal/handle"
)

// binaryCache maps a source URL to a materialized handle. It is not safe for
// concurrent use; the Loader serializes access under its mutex.
type binaryCache struct {
	entries *simplelru.LRU[string, handle.Handle]
	size    int
	policy  EvictionPolicy
	// onEvict observes capacity evictions only (not Remove or Clear).
	onEvict func(url string)
}

func newBinaryCache(size int, policy EvictionPolicy, onEvict func(url string)) (*binaryCache, error) {
	// Every path that drops an entry (capacity eviction, Remove, Purge)
	// releases the handle exactly once.
	entries, err := simplelru.NewLRU[string, handle.Handle](size, func(_ string, h handle.Handle) {
		h.Release()
	})
	if err != nil {
		return nil, err
	}
	return &binaryCache{entries: entries, size: size, policy: policy, onEvict: onEvict}, nil
}

// get returns the handle for url. Under EvictFIFO a hit does not affect
// eviction order.
func (c *binaryCache) get(url string) (handle.Handle, bool) {
	if c.policy == EvictLRU {
		return c.entries.Get(url)
	}
	return c.entries.Peek(url)
}

func (c *binaryCache) contains(url string) bool { return c.entries.Contains(url) }

// put inserts h, evicting the oldest entry first when at capacity. Replacing
// an existing entry with a different handle releases the previous one.
func (c *binaryCache) put(url string, h handle.Handle) {
	if old, ok := c.entries.Peek(url); ok {
		if old == h {
			return
		}
		old.Release()
		c.entries.Add(url, h)
		return
	}
	var victim string
	if c.entries.Len() >= c.size {
		victim, _, _ = c.entries.GetOldest()
	}
	if evicted := c.entries.Add(url, h); evicted && c.onEvict != nil {
		c.onEvict(victim)
	}
}

// remove drops url, releasing its handle.
func (c *binaryCache) remove(url string) bool { return c.entries.Remove(url) }

// clear releases every handle and empties the cache.
func (c *binaryCache) clear() { c.entries.Purge() }

func (c *binaryCache) len() int { return c.entries.Len() }

func (c *binaryCache) cap() int { return c.size }
