// Package tl implements the wire-level envelope codec used by the MTProto
// session and handshake layers: length-prefixed integers, bytes, vectors and
// the handful of boxed constructors the transport/session/auth packages need
// to speak for themselves (msg_container, rpc_result, the DH handshake
// messages, …). It deliberately does not implement the generated TL schema
// for the full Telegram API — callers bring their own TL objects through the
// Object interface and are only asked to round-trip through Encode/Decode.
package tl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
)

// Object is the minimal contract a TL-encodable value must satisfy. Higher
// layers (a generated schema, or the envelope types in this package) provide
// concrete implementations; the session/auth/transport packages only ever
// call through this interface.
type Object interface {
	CRC() uint32
	Encode(b *EncodeBuf)
}

// Decoder turns a boxed constructor id plus the following bytes into an
// Object. DecodeBuf.Object decodes the envelope-level types of this package
// itself and hands every other constructor id to its Decoder; a generated
// schema would supply the rest of the API surface that way.
type Decoder interface {
	DecodeByCRC(crc uint32, b *DecodeBuf) (Object, error)
}

// EncodeBuf accumulates a TL byte stream.
type EncodeBuf struct {
	buf []byte
}

func NewEncodeBuf(sizeHint int) *EncodeBuf {
	return &EncodeBuf{buf: make([]byte, 0, sizeHint)}
}

func (e *EncodeBuf) Bytes() []byte { return e.buf }

func (e *EncodeBuf) UInt(x uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], x)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *EncodeBuf) Int(x int32) { e.UInt(uint32(x)) }

func (e *EncodeBuf) Long(x int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(x))
	e.buf = append(e.buf, tmp[:]...)
}

func (e *EncodeBuf) ULong(x uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], x)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *EncodeBuf) Double(x float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(x))
	e.buf = append(e.buf, tmp[:]...)
}

func (e *EncodeBuf) Bytes_(b []byte) { e.buf = append(e.buf, b...) }

// StringBytes writes a length-prefixed, zero-padded-to-4-bytes byte string
// per the TL bare string encoding.
func (e *EncodeBuf) StringBytes(b []byte) {
	size := len(b)
	if size < 254 {
		e.buf = append(e.buf, byte(size))
		e.buf = append(e.buf, b...)
		pad := (4 - (size+1)%4) & 3
		for i := 0; i < pad; i++ {
			e.buf = append(e.buf, 0)
		}
		return
	}
	e.buf = append(e.buf, 254, byte(size), byte(size>>8), byte(size>>16))
	e.buf = append(e.buf, b...)
	pad := (4 - size%4) & 3
	for i := 0; i < pad; i++ {
		e.buf = append(e.buf, 0)
	}
}

func (e *EncodeBuf) String(s string) { e.StringBytes([]byte(s)) }

func (e *EncodeBuf) BigInt(v *big.Int) { e.StringBytes(v.Bytes()) }

func (e *EncodeBuf) Int128(b [16]byte) { e.buf = append(e.buf, b[:]...) }

func (e *EncodeBuf) Int256(b [32]byte) { e.buf = append(e.buf, b[:]...) }

func (e *EncodeBuf) Bool(v bool) {
	if v {
		e.UInt(CRCBoolTrue)
	} else {
		e.UInt(CRCBoolFalse)
	}
}

// Vector writes the boxed vector constructor followed by each item encoded
// through fn.
func VectorEncode[T any](e *EncodeBuf, items []T, fn func(*EncodeBuf, T)) {
	e.UInt(CRCVector)
	e.Int(int32(len(items)))
	for _, it := range items {
		fn(e, it)
	}
}

func (e *EncodeBuf) Object(o Object) {
	e.UInt(o.CRC())
	o.Encode(e)
}

// DecodeBuf reads a TL byte stream left to right, recording the first error
// encountered; subsequent reads become no-ops so call sites don't need to
// check err after every field.
type DecodeBuf struct {
	buf  []byte
	off  int
	size int
	err  error
}

func NewDecodeBuf(b []byte) *DecodeBuf {
	return &DecodeBuf{buf: b, size: len(b)}
}

func (d *DecodeBuf) Err() error { return d.err }

func (d *DecodeBuf) Remaining() int { return d.size - d.off }

func (d *DecodeBuf) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *DecodeBuf) Long() int64 {
	if d.err != nil {
		return 0
	}
	if d.off+8 > d.size {
		d.fail(errors.New("tl: unexpected end of buffer reading long"))
		return 0
	}
	x := int64(binary.LittleEndian.Uint64(d.buf[d.off : d.off+8]))
	d.off += 8
	return x
}

func (d *DecodeBuf) ULong() uint64 {
	if d.err != nil {
		return 0
	}
	if d.off+8 > d.size {
		d.fail(errors.New("tl: unexpected end of buffer reading ulong"))
		return 0
	}
	x := binary.LittleEndian.Uint64(d.buf[d.off : d.off+8])
	d.off += 8
	return x
}

func (d *DecodeBuf) Double() float64 {
	if d.err != nil {
		return 0
	}
	if d.off+8 > d.size {
		d.fail(errors.New("tl: unexpected end of buffer reading double"))
		return 0
	}
	x := math.Float64frombits(binary.LittleEndian.Uint64(d.buf[d.off : d.off+8]))
	d.off += 8
	return x
}

func (d *DecodeBuf) Int() int32 {
	return int32(d.UInt())
}

func (d *DecodeBuf) UInt() uint32 {
	if d.err != nil {
		return 0
	}
	if d.off+4 > d.size {
		d.fail(errors.New("tl: unexpected end of buffer reading int"))
		return 0
	}
	x := binary.LittleEndian.Uint32(d.buf[d.off : d.off+4])
	d.off += 4
	return x
}

func (d *DecodeBuf) Bytes(size int) []byte {
	if d.err != nil {
		return nil
	}
	if size < 0 || d.off+size > d.size {
		d.fail(errors.New("tl: unexpected end of buffer reading bytes"))
		return nil
	}
	x := make([]byte, size)
	copy(x, d.buf[d.off:d.off+size])
	d.off += size
	return x
}

func (d *DecodeBuf) Int128() [16]byte {
	var out [16]byte
	copy(out[:], d.Bytes(16))
	return out
}

func (d *DecodeBuf) Int256() [32]byte {
	var out [32]byte
	copy(out[:], d.Bytes(32))
	return out
}

func (d *DecodeBuf) StringBytes() []byte {
	if d.err != nil {
		return nil
	}
	if d.off+1 > d.size {
		d.fail(errors.New("tl: unexpected end of buffer reading string length"))
		return nil
	}
	size := int(d.buf[d.off])
	d.off++
	padding := (4 - ((size + 1) % 4)) & 3
	if size == 254 {
		if d.off+3 > d.size {
			d.fail(errors.New("tl: unexpected end of buffer reading long string length"))
			return nil
		}
		size = int(d.buf[d.off]) | int(d.buf[d.off+1])<<8 | int(d.buf[d.off+2])<<16
		d.off += 3
		padding = (4 - size%4) & 3
	}
	if d.off+size > d.size {
		d.fail(fmt.Errorf("tl: string out of bounds: want %d bytes at offset %d, have %d", size, d.off, d.size))
		return nil
	}
	x := make([]byte, size)
	copy(x, d.buf[d.off:d.off+size])
	d.off += size
	if d.off+padding > d.size {
		d.fail(errors.New("tl: string padding out of bounds"))
		return nil
	}
	d.off += padding
	return x
}

func (d *DecodeBuf) String() string { return string(d.StringBytes()) }

func (d *DecodeBuf) BigInt() *big.Int {
	b := d.StringBytes()
	if d.err != nil {
		return nil
	}
	y := make([]byte, len(b)+1)
	copy(y[1:], b)
	return new(big.Int).SetBytes(y)
}

func (d *DecodeBuf) Bool() bool {
	crc := d.UInt()
	if d.err != nil {
		return false
	}
	switch crc {
	case CRCBoolTrue:
		return true
	case CRCBoolFalse:
		return false
	default:
		d.fail(fmt.Errorf("tl: unexpected bool constructor 0x%08x", crc))
		return false
	}
}

func (d *DecodeBuf) VectorLong() []int64 {
	if d.UInt(); d.err != nil {
		return nil
	}
	size := d.Int()
	if d.err != nil || size < 0 {
		d.fail(errors.New("tl: bad vector<long> size"))
		return nil
	}
	out := make([]int64, size)
	for i := range out {
		out[i] = d.Long()
		if d.err != nil {
			return nil
		}
	}
	return out
}

func (d *DecodeBuf) VectorInt() []int32 {
	if d.UInt(); d.err != nil {
		return nil
	}
	size := d.Int()
	if d.err != nil || size < 0 {
		d.fail(errors.New("tl: bad vector<int> size"))
		return nil
	}
	out := make([]int32, size)
	for i := range out {
		out[i] = d.Int()
		if d.err != nil {
			return nil
		}
	}
	return out
}

// Object decodes one boxed value, dispatching envelope-level constructors
// directly (gzip_packed is transparently inflated) and everything else
// through dec.
func (d *DecodeBuf) Object(dec Decoder) (Object, error) {
	if d.err != nil {
		return nil, d.err
	}
	crc := d.UInt()
	if d.err != nil {
		return nil, d.err
	}
	if obj, ok := decodeEnvelope(crc, d, dec); ok {
		if d.err != nil {
			return nil, d.err
		}
		return obj, nil
	}
	obj, err := dec.DecodeByCRC(crc, d)
	if err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	return obj, nil
}
