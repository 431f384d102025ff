package bcs

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
)

// Writer appends BCS-encoded values. Like Reader its first error is sticky.
type Writer struct {
	buf []byte
	err error
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Err() error { return w.err }

// Result returns the encoded buffer, or the first error.
func (w *Writer) Result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) U128(v *uint256.Int) *Writer {
	if v[2] != 0 || v[3] != 0 {
		if w.err == nil {
			w.err = fmt.Errorf("bcs: value %s exceeds u128", v.Dec())
		}
		return w
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v[0])
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v[1])
	return w
}

func (w *Writer) U256(v *uint256.Int) *Writer {
	for i := 0; i < 4; i++ {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, v[i])
	}
	return w
}

func (w *Writer) ULEB128(n int) *Writer {
	if n < 0 || n > MaxSequenceLength {
		if w.err == nil {
			w.err = fmt.Errorf("bcs: length %d out of range", n)
		}
		return w
	}
	v := uint32(n)
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
	return w
}

// Raw appends bytes without a length prefix.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// VecBytes appends a length-prefixed byte vector.
func (w *Writer) VecBytes(b []byte) *Writer {
	return w.ULEB128(len(b)).Raw(b)
}

func (w *Writer) Str(s string) *Writer {
	return w.VecBytes([]byte(s))
}

func (w *Writer) Address(a [32]byte) *Writer {
	return w.Raw(a[:])
}
