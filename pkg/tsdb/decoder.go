package tsdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// RecordKind discriminates decoded records.
type RecordKind uint8

const (
	RecordChannelDefined RecordKind = iota
	RecordTimestamp
	RecordValue
	RecordEOF
)

// Record is one decoded entry. Channel is set for RecordChannelDefined and
// RecordValue; TimestampMs for RecordTimestamp and RecordValue.
type Record struct {
	Kind        RecordKind
	Channel     *ChannelDef
	TimestampMs int64
	Value       Value
}

// tailWindow bounds how far from the end of an unfinalized stream a format
// error is attributed to a crashed append and treated as end-of-stream.
const tailWindow = 64 << 10

// Decoder walks the entry stream of one file, maintaining the current
// timestamp and the channel table. It is a state machine, not a
// context-free parser: every value entry is resolved against state built
// from earlier entries.
type Decoder struct {
	path string
	data []byte
	off  int
	base int64 // file offset of data[0]

	reg   *Registry
	tsMs  int64
	hasTS bool

	finalized bool // saw the 0xfe marker
	done      bool
	consumed  int // offset just past the last complete entry
}

// NewFileDecoder validates the file header and returns a decoder positioned
// at the first entry. The registry is filled in as definitions are decoded.
func NewFileDecoder(path string, data []byte, reg *Registry) (*Decoder, error) {
	if len(data) < HeaderSize {
		return nil, formatErr(path, 0, fmt.Errorf("%w: file header", ErrShortRead))
	}
	if !bytes.Equal(data[:8], []byte(Magic)) {
		return nil, formatErr(path, 0, ErrBadMagic)
	}
	r := byteReader{data: data, off: 8}
	version, _ := r.u32("format version")
	if version != Version {
		return nil, formatErr(path, 8, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version))
	}
	return NewStreamDecoder(path, data[HeaderSize:], HeaderSize, reg), nil
}

// NewStreamDecoder decodes an entry stream starting at an entry boundary.
// fileOffset is the stream's position within the file, used for error
// reporting and Offset. It exists so incremental readers can resume a
// partially parsed file without rescanning from the header.
func NewStreamDecoder(path string, data []byte, fileOffset int64, reg *Registry) *Decoder {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Decoder{path: path, data: data, base: fileOffset, reg: reg}
}

// RestoreTimestamp seeds the current timestamp when resuming mid-stream.
func (d *Decoder) RestoreTimestamp(tsMs int64) {
	d.tsMs = tsMs
	d.hasTS = true
}

// Registry returns the channel table built so far.
func (d *Decoder) Registry() *Registry { return d.reg }

// Timestamp returns the current timestamp state.
func (d *Decoder) Timestamp() (int64, bool) { return d.tsMs, d.hasTS }

// Offset is the file offset just past the last complete entry.
func (d *Decoder) Offset() int64 { return d.base + int64(d.consumed) }

// Finalized reports whether the 0xfe marker was decoded.
func (d *Decoder) Finalized() bool { return d.finalized }

// Next decodes one record. It returns io.EOF at the end of the stream; for
// an unfinalized stream a partial trailing entry counts as end-of-stream
// (the bytes are considered not yet written). The context is checked at
// entry boundaries only.
func (d *Decoder) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if d.done {
		return Record{}, io.EOF
	}
	if d.finalized {
		if d.off < len(d.data) {
			return Record{}, formatErr(d.path, d.base+int64(d.off),
				fmt.Errorf("%w: %d bytes after end-of-file marker", ErrTruncated, len(d.data)-d.off))
		}
		d.done = true
		return Record{}, io.EOF
	}
	if d.off >= len(d.data) {
		d.done = true
		return Record{}, io.EOF
	}

	start := d.off
	rec, err := d.decodeEntry()
	if err != nil {
		if d.recoverable(start, err) {
			// Crashed append: rewind to the entry boundary and stop.
			d.off = start
			d.consumed = start
			d.done = true
			return Record{}, io.EOF
		}
		return Record{}, formatErr(d.path, d.base+int64(start), err)
	}
	d.consumed = d.off
	return rec, nil
}

// recoverable reports whether a format error at the given entry start is
// attributable to a partially written tail: the stream is not finalized,
// the error is truncation-shaped, and the entry starts within the tail
// window. Other format errors are corruption and stay fatal.
func (d *Decoder) recoverable(start int, err error) bool {
	if d.finalized {
		return false
	}
	if !errors.Is(err, ErrShortRead) && !errors.Is(err, ErrStringTooLong) {
		return false
	}
	return len(d.data)-start <= tailWindow
}

func (d *Decoder) decodeEntry() (Record, error) {
	r := byteReader{data: d.data, off: d.off}
	typ, err := r.u8("entry type")
	if err != nil {
		return Record{}, err
	}

	var rec Record
	switch {
	case typ <= MaxChannelID8:
		rec, err = d.decodeValueEntry(&r, uint16(typ))

	case typ == entryValue16:
		var id uint16
		id, err = r.u16("16-bit channel id")
		if err == nil {
			if id <= MaxChannelID8 {
				err = fmt.Errorf("%w: escaped id %d fits in one byte", ErrInvalidChannelID, id)
			} else {
				rec, err = d.decodeValueEntry(&r, id)
			}
		}

	case typ == entryTimeAbsolute:
		var ms uint64
		ms, err = r.u64("absolute timestamp")
		if err == nil {
			d.tsMs = int64(ms)
			d.hasTS = true
			rec = Record{Kind: RecordTimestamp, TimestampMs: d.tsMs}
		}

	case typ >= entryTimeRel8 && typ <= entryTimeRel32:
		var delta uint64
		switch typ {
		case entryTimeRel8:
			var v byte
			v, err = r.u8("relative timestamp (8-bit)")
			delta = uint64(v)
		case entryTimeRel16:
			var v uint16
			v, err = r.u16("relative timestamp (16-bit)")
			delta = uint64(v)
		case entryTimeRel24:
			var v uint32
			v, err = r.u24("relative timestamp (24-bit)")
			delta = uint64(v)
		default:
			var v uint32
			v, err = r.u32("relative timestamp (32-bit)")
			delta = uint64(v)
		}
		if err == nil {
			if !d.hasTS {
				err = fmt.Errorf("%w: relative time entry", ErrMissingTimestamp)
			} else {
				d.tsMs += int64(delta)
				rec = Record{Kind: RecordTimestamp, TimestampMs: d.tsMs}
			}
		}

	case typ == entryChannelDef8:
		rec, err = d.decodeChannelDef(&r, false)

	case typ == entryChannelDef16:
		rec, err = d.decodeChannelDef(&r, true)

	case typ == entryEOF:
		d.finalized = true
		rec = Record{Kind: RecordEOF}

	default:
		err = fmt.Errorf("%w 0x%02x", ErrUnknownEntryType, typ)
	}

	if err != nil {
		return Record{}, err
	}
	d.off = r.off
	return rec, nil
}

func (d *Decoder) decodeValueEntry(r *byteReader, id uint16) (Record, error) {
	if !d.hasTS {
		return Record{}, ErrMissingTimestamp
	}
	def, err := d.reg.Lookup(id)
	if err != nil {
		return Record{}, err
	}
	v, err := decodeValue(r, def.FormatID)
	if err != nil {
		return Record{}, err
	}
	return Record{Kind: RecordValue, Channel: def, TimestampMs: d.tsMs, Value: v}, nil
}

func (d *Decoder) decodeChannelDef(r *byteReader, wide bool) (Record, error) {
	var id uint16
	var err error
	if wide {
		id, err = r.u16("16-bit channel definition id")
		if err == nil && id <= MaxChannelID8 {
			return Record{}, fmt.Errorf("%w: 16-bit definition of id %d", ErrInvalidChannelID, id)
		}
	} else {
		var b byte
		b, err = r.u8("channel definition id")
		id = uint16(b)
		if err == nil && id > MaxChannelID8 {
			return Record{}, fmt.Errorf("%w: 8-bit definition of id %d", ErrInvalidChannelID, id)
		}
	}
	if err != nil {
		return Record{}, err
	}
	formatID, err := r.u8("channel format id")
	if err != nil {
		return Record{}, err
	}
	nameLen, err := r.u8("channel name length")
	if err != nil {
		return Record{}, err
	}
	name, err := r.bytes(int(nameLen), "channel name")
	if err != nil {
		return Record{}, err
	}
	def, err := d.reg.Define(id, formatID, string(name))
	if err != nil {
		return Record{}, err
	}
	return Record{Kind: RecordChannelDefined, Channel: def}, nil
}
