package collector

import "sync"

// dedupCapacity bounds the in-process recently-seen set so it survives a
// gateway resume's retransmits without growing unboundedly (§4.1).
const dedupCapacity = 1000

// dedupCache is a fixed-capacity, FIFO-evicting set of message ids.
type dedupCache struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func newDedupCache() *dedupCache {
	return &dedupCache{seen: make(map[string]struct{}, dedupCapacity)}
}

// SeenOrAdd reports whether id was already present, adding it otherwise.
func (d *dedupCache) SeenOrAdd(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if len(d.order) >= dedupCapacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	return false
}
