package republisher

import "sync"

// dedupCapacity bounds the republisher's second dedup line (§4.2), guarding
// against the collector's dual enqueue path (queue push + HTTP POST).
const dedupCapacity = 1000

type dedupCache struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func newDedupCache() *dedupCache {
	return &dedupCache{seen: make(map[string]struct{})}
}

// SeenOrAdd reports whether id was already recorded, recording it otherwise.
func (c *dedupCache) SeenOrAdd(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[id]; ok {
		return true
	}

	if len(c.order) >= dedupCapacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, oldest)
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	return false
}
