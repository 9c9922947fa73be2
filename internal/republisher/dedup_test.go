package republisher

import "testing"

func TestDedupCacheSeenOrAdd(t *testing.T) {
	t.Parallel()

	c := newDedupCache()
	if c.SeenOrAdd("a") {
		t.Fatal("first SeenOrAdd(a) should report false")
	}
	if !c.SeenOrAdd("a") {
		t.Fatal("second SeenOrAdd(a) should report true")
	}
}

func TestDedupCacheEvictsOldest(t *testing.T) {
	t.Parallel()

	c := newDedupCache()
	for i := 0; i <= dedupCapacity; i++ {
		c.SeenOrAdd(string(rune(i)))
	}
	if c.SeenOrAdd(string(rune(0))) {
		t.Fatal("oldest entry should have been evicted, expected SeenOrAdd to report false")
	}
}
