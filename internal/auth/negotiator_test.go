package auth

import "testing"

func TestUint64BytesRoundTripTrimsLeadingZeros(t *testing.T) {
	cases := []uint64{0, 1, 255, 256, 1 << 40, ^uint64(0)}
	for _, v := range cases {
		b := uint64ToBytes(v)
		if len(b) > 1 && b[0] == 0 {
			t.Fatalf("uint64ToBytes(%d) kept a leading zero byte: %v", v, b)
		}
		got := bytesToUint64(b)
		if got != v {
			t.Fatalf("round trip failed for %d: got %d via bytes %v", v, got, b)
		}
	}
}

func TestUint64ToBytesZeroIsOneByte(t *testing.T) {
	b := uint64ToBytes(0)
	if len(b) != 1 || b[0] != 0 {
		t.Fatalf("expected a single zero byte for 0, got %v", b)
	}
}

func TestBytesToUint64EmptyIsZero(t *testing.T) {
	if got := bytesToUint64(nil); got != 0 {
		t.Fatalf("expected 0 for an empty slice, got %d", got)
	}
}
