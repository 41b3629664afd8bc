package tsdb

import (
	"encoding/binary"
	"fmt"
	"math"
)

// byteReader is a bounds-checked little-endian cursor over a byte slice.
// Every read either consumes the full field or fails with ErrShortRead and
// leaves the cursor untouched, so a caller can rewind to an entry boundary.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) remaining() int { return len(r.data) - r.off }

func (r *byteReader) need(n int, what string) error {
	if r.off+n > len(r.data) {
		return fmt.Errorf("%w: %s", ErrShortRead, what)
	}
	return nil
}

func (r *byteReader) u8(what string) (byte, error) {
	if err := r.need(1, what); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *byteReader) u16(what string) (uint16, error) {
	if err := r.need(2, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *byteReader) u24(what string) (uint32, error) {
	if err := r.need(3, what); err != nil {
		return 0, err
	}
	b := r.data[r.off:]
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	r.off += 3
	return v, nil
}

// i24 sign-extends bit 23 into a full-width signed value.
func (r *byteReader) i24(what string) (int32, error) {
	v, err := r.u24(what)
	if err != nil {
		return 0, err
	}
	if v&0x800000 != 0 {
		return int32(v) - (1 << 24), nil
	}
	return int32(v), nil
}

func (r *byteReader) u32(what string) (uint32, error) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *byteReader) u64(what string) (uint64, error) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *byteReader) f32(what string) (float32, error) {
	v, err := r.u32(what)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *byteReader) f64(what string) (float64, error) {
	v, err := r.u64(what)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *byteReader) bytes(n int, what string) ([]byte, error) {
	if err := r.need(n, what); err != nil {
		return nil, err
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v, nil
}

func appendU16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func appendU24(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16))
}

func appendU32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendU64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func appendF32(dst []byte, v float32) []byte {
	return appendU32(dst, math.Float32bits(v))
}

func appendF64(dst []byte, v float64) []byte {
	return appendU64(dst, math.Float64bits(v))
}
