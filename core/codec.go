package core

// Byte-exact wire codec shared by every on-wire and on-disk value in the
// ledger: fixed-width big-endian integers, length-prefixed byte blobs and
// tagged enumerations. Every encodable type satisfies Encodable so callers
// can pre-size buffers with ByteSize before calling Encode, and decode(encode(x))
// always reproduces x exactly.

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned by decoders when the input ends before a value
// has been fully read.
var ErrShortBuffer = errors.New("codec: short buffer")

// Encodable is satisfied by every value with a stable, self-describing wire
// representation.
type Encodable interface {
	Encode(w *Writer)
	ByteSize() int
}

// Writer accumulates bytes for a single encode pass. It never returns
// errors: callers size the destination buffer once with ByteSize.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with its backing buffer pre-sized to n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutBytes writes a u32 length prefix followed by raw bytes.
func (w *Writer) PutBytes(b []byte) {
	w.PutU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutRaw appends b verbatim with no length prefix, for fixed-size fields
// (hashes, public keys) whose size is already implied by the format.
func (w *Writer) PutRaw(b []byte) { w.buf = append(w.buf, b...) }

// Reader consumes bytes for a single decode pass, tracking the current
// offset so EvalErr-style "byte position" reporting stays possible upstream.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of bytes left to read.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

func (r *Reader) GetU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) GetU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) GetU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) GetU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// GetBytes reads a u32 length prefix then that many bytes.
func (r *Reader) GetBytes() ([]byte, error) {
	n, err := r.GetU32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return b, nil
}

// GetRaw reads exactly n bytes with no length prefix.
func (r *Reader) GetRaw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+n])
	r.off += n
	return b, nil
}

// BytesRemaining reports whether the reader has unconsumed trailing bytes;
// the RPC framing layer (§6.3) treats this as a protocol error.
func (r *Reader) BytesRemaining() bool { return r.Remaining() > 0 }

// Encode runs e.Encode into a freshly-sized Writer and returns the bytes.
func Encode(e Encodable) []byte {
	w := NewWriter(e.ByteSize())
	e.Encode(w)
	return w.Bytes()
}

// CheckByteSize returns an error when an encoder's declared ByteSize
// disagrees with what it actually wrote, and nil otherwise; used by
// the round-trip property tests in codec_test.go.
func CheckByteSize(e Encodable) error {
	got := len(Encode(e))
	want := e.ByteSize()
	if got != want {
		return fmt.Errorf("codec: byte_size mismatch: declared %d, wrote %d", want, got)
	}
	return nil
}
