package collector

import "testing"

func TestDedupCacheSeenOrAdd(t *testing.T) {
	t.Parallel()

	d := newDedupCache()
	if d.SeenOrAdd("m1") {
		t.Error("SeenOrAdd(\"m1\") first call returned true, want false")
	}
	if !d.SeenOrAdd("m1") {
		t.Error("SeenOrAdd(\"m1\") second call returned false, want true")
	}
}

func TestDedupCacheEvictsOldest(t *testing.T) {
	t.Parallel()

	d := newDedupCache()
	for i := 0; i < dedupCapacity; i++ {
		d.SeenOrAdd(string(rune(i)))
	}
	// Force eviction of the very first id inserted.
	d.SeenOrAdd("overflow")

	if d.SeenOrAdd(string(rune(0))) {
		t.Error("oldest id still reported as seen after capacity was exceeded, want it evicted")
	}
}
