package session

import "testing"

func TestRingSetRoundsCapacityToPowerOfTwo(t *testing.T) {
	r := NewRingSet(5)
	if r.cap != 8 {
		t.Fatalf("expected capacity rounded up to 8, got %d", r.cap)
	}
}

func TestRingSetContainsAfterAdd(t *testing.T) {
	r := NewRingSet(4)
	if r.Contains(7) {
		t.Fatal("fresh ring must not contain anything")
	}
	r.Add(7)
	if !r.Contains(7) {
		t.Fatal("expected 7 to be recorded")
	}
}

func TestRingSetAddIsIdempotent(t *testing.T) {
	r := NewRingSet(4)
	r.Add(1)
	r.Add(1)
	r.Add(1)
	if len(r.seen) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(r.seen))
	}
}

func TestRingSetEvictsOldestOnceFull(t *testing.T) {
	r := NewRingSet(4)
	for i := int64(1); i <= 4; i++ {
		r.Add(i)
	}
	if !r.Contains(1) {
		t.Fatal("ring should still hold its first entry before going past capacity")
	}
	r.Add(5) // ring is full; this must evict id 1
	if r.Contains(1) {
		t.Fatal("expected the oldest id (1) to be evicted")
	}
	for i := int64(2); i <= 5; i++ {
		if !r.Contains(i) {
			t.Fatalf("expected %d to still be recorded", i)
		}
	}
}
