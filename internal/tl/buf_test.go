package tl

import (
	"math/big"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := NewEncodeBuf(64)
	e.Int(-7)
	e.Long(1234567890123)
	e.ULong(18446744073709551615)
	e.Bool(true)
	e.Bool(false)
	e.String("hello world, this is a longer string than 253 bytes would need but still short enough")
	e.BigInt(big.NewInt(424242))
	e.Int128([16]byte{1, 2, 3})
	e.Int256([32]byte{9, 9, 9})

	d := NewDecodeBuf(e.Bytes())
	if got := d.Int(); got != -7 {
		t.Fatalf("Int: got %d", got)
	}
	if got := d.Long(); got != 1234567890123 {
		t.Fatalf("Long: got %d", got)
	}
	if got := d.ULong(); got != 18446744073709551615 {
		t.Fatalf("ULong: got %d", got)
	}
	if got := d.Bool(); !got {
		t.Fatalf("Bool: want true")
	}
	if got := d.Bool(); got {
		t.Fatalf("Bool: want false")
	}
	if got := d.String(); got != "hello world, this is a longer string than 253 bytes would need but still short enough" {
		t.Fatalf("String: got %q", got)
	}
	if got := d.BigInt(); got.Cmp(big.NewInt(424242)) != 0 {
		t.Fatalf("BigInt: got %v", got)
	}
	if got := d.Int128(); got != ([16]byte{1, 2, 3}) {
		t.Fatalf("Int128: got %v", got)
	}
	if got := d.Int256(); got != ([32]byte{9, 9, 9}) {
		t.Fatalf("Int256: got %v", got)
	}
	if err := d.Err(); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if rem := d.Remaining(); rem != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes left", rem)
	}
}

func TestStringBytesLongForm(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	e := NewEncodeBuf(1100)
	e.StringBytes(payload)

	d := NewDecodeBuf(e.Bytes())
	got := d.StringBytes()
	if d.Err() != nil {
		t.Fatalf("unexpected error: %v", d.Err())
	}
	if len(got) != len(payload) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(payload))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestDecodeBufStopsAtFirstError(t *testing.T) {
	d := NewDecodeBuf([]byte{1, 2, 3}) // too short for a Long
	_ = d.Long()
	if d.Err() == nil {
		t.Fatal("expected an error reading past the end of the buffer")
	}
	// Further reads must not panic and must keep returning the same error.
	if got := d.Int(); got != 0 {
		t.Fatalf("expected zero value after first error, got %d", got)
	}
	if d.Err() == nil {
		t.Fatal("expected error to persist")
	}
}

func TestVectorLongRoundTrip(t *testing.T) {
	e := NewEncodeBuf(64)
	VectorEncode(e, []int64{1, 2, 3, -4}, func(b *EncodeBuf, v int64) { b.Long(v) })

	d := NewDecodeBuf(e.Bytes())
	got := d.VectorLong()
	if d.Err() != nil {
		t.Fatalf("unexpected error: %v", d.Err())
	}
	want := []int64{1, 2, 3, -4}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: got %d want %d", i, got[i], want[i])
		}
	}
}
