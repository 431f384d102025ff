// Package bcs implements the subset of Binary Canonical Serialization used by
// the ledger's result buffers and transaction kinds.
package bcs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

// MaxSequenceLength bounds every ULEB128 length prefix.
const MaxSequenceLength = 1<<31 - 1

// ErrMalformed is wrapped by every Reader failure.
var ErrMalformed = errors.New("bcs: malformed input")

// Error locates a decoding failure.
type Error struct {
	Offset int
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("bcs: offset %d: %s", e.Offset, e.Reason) }

func (e *Error) Unwrap() error { return ErrMalformed }

// Reader consumes a buffer front to back. The first failure is sticky:
// later reads return zero values and Err keeps reporting the first error.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Offset() int { return r.off }

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Done fails when bytes remain after the last field.
func (r *Reader) Done() error {
	if r.err == nil && r.off != len(r.buf) {
		r.fail(fmt.Sprintf("%d trailing bytes", len(r.buf)-r.off))
	}
	return r.err
}

func (r *Reader) fail(reason string) {
	if r.err == nil {
		r.err = &Error{Offset: r.off, Reason: reason}
	}
}

func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.fail(fmt.Sprintf("need %d bytes for %s, have %d", n, what, r.Remaining()))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1, "u8")
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool {
	off := r.off
	v := r.U8()
	if r.err != nil {
		return false
	}
	switch v {
	case 0:
		return false
	case 1:
		return true
	}
	r.err = &Error{Offset: off, Reason: fmt.Sprintf("invalid bool byte %#x", v)}
	return false
}

func (r *Reader) U16() uint16 {
	b := r.take(2, "u16")
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4, "u32")
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8, "u64")
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// U128 returns the value widened to 256 bits.
func (r *Reader) U128() *uint256.Int {
	b := r.take(16, "u128")
	z := new(uint256.Int)
	if b == nil {
		return z
	}
	z[0] = binary.LittleEndian.Uint64(b[0:8])
	z[1] = binary.LittleEndian.Uint64(b[8:16])
	return z
}

func (r *Reader) U256() *uint256.Int {
	b := r.take(32, "u256")
	z := new(uint256.Int)
	if b == nil {
		return z
	}
	for i := 0; i < 4; i++ {
		z[i] = binary.LittleEndian.Uint64(b[i*8 : i*8+8])
	}
	return z
}

// ULEB128 reads a length prefix, rejecting non-canonical encodings and
// values above MaxSequenceLength.
func (r *Reader) ULEB128() int {
	if r.err != nil {
		return 0
	}
	start := r.off
	var v uint64
	for shift := uint(0); shift < 35; shift += 7 {
		b := r.U8()
		if r.err != nil {
			return 0
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if b == 0 && shift > 0 {
				r.err = &Error{Offset: start, Reason: "non-canonical uleb128"}
				return 0
			}
			if v > MaxSequenceLength {
				r.err = &Error{Offset: start, Reason: fmt.Sprintf("length %d exceeds limit", v)}
				return 0
			}
			return int(v)
		}
	}
	r.err = &Error{Offset: start, Reason: "uleb128 overflow"}
	return 0
}

// Bytes returns n raw bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n, "bytes")
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// VecBytes reads a length-prefixed byte vector.
func (r *Reader) VecBytes() []byte {
	return r.Bytes(r.ULEB128())
}

// Str reads a length-prefixed UTF-8 string.
func (r *Reader) Str() string {
	start := r.off
	b := r.VecBytes()
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.err = &Error{Offset: start, Reason: "string is not valid utf-8"}
		return ""
	}
	return string(b)
}

// Address reads a 32-byte account or object address.
func (r *Reader) Address() [32]byte {
	var a [32]byte
	copy(a[:], r.take(32, "address"))
	return a
}
