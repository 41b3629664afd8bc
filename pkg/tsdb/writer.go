package tsdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// Writer appends entries to one day file. It owns the file exclusively
// (advisory flock) for its lifetime; concurrent readers stay safe because
// the file only ever grows and they stop at the last complete entry.
type Writer struct {
	path string
	f    *os.File

	reg   *Registry
	tsMs  int64
	hasTS bool

	finalized bool
	dirty     bool // state may not match the file; rescan before appending

	scratch []byte
}

// OpenWriter opens or creates the day file at path for appending. An
// existing file is scanned to rebuild the channel table and timestamp
// state; a partial trailing entry left by a crashed append is truncated
// away. Opening a finalized file fails with ErrFinalized: finalization is
// one-way, late samples for a finalized day are refused.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("tsdb: acquire write lock on %s: %w", path, err)
	}
	w := &Writer{path: path, f: f}
	if err := w.rescan(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// rescan rebuilds registry and timestamp state from the file bytes and
// positions the file offset at the last complete entry boundary.
func (w *Writer) rescan() error {
	st, err := w.f.Stat()
	if err != nil {
		return err
	}

	// A file shorter than the header is a crashed create; start over.
	if st.Size() < HeaderSize {
		if err := w.f.Truncate(0); err != nil {
			return err
		}
		if _, err := w.f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		hdr := make([]byte, 0, HeaderSize)
		hdr = append(hdr, Magic...)
		hdr = appendU32(hdr, Version)
		if err := writeFull(w.f, hdr); err != nil {
			return err
		}
		w.reg = NewStrictRegistry()
		w.hasTS = false
		w.finalized = false
		w.dirty = false
		return nil
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(w.f)
	if err != nil {
		return err
	}

	reg := NewStrictRegistry()
	dec, err := NewFileDecoder(w.path, data, reg)
	if err != nil {
		return err
	}
	for {
		rec, err := dec.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if rec.Kind == RecordEOF {
			return fmt.Errorf("%w: %s", ErrFinalized, w.path)
		}
	}

	w.reg = reg
	w.tsMs, w.hasTS = dec.Timestamp()
	w.finalized = false
	w.dirty = false

	// Drop a crashed partial tail so the next append starts at a clean
	// entry boundary.
	if dec.Offset() < st.Size() {
		if err := w.f.Truncate(dec.Offset()); err != nil {
			return err
		}
	}
	if _, err := w.f.Seek(dec.Offset(), io.SeekStart); err != nil {
		return err
	}
	return nil
}

// Append persists one sample with the smallest legal encoding: a channel
// definition when the series is new to this file, a time entry when the
// timestamp moved, then the value entry. An out-of-order sample falls back
// to an absolute time entry, which moves the stream clock backward; the
// decoded timestamps follow the order of the appends.
func (w *Writer) Append(name string, formatID byte, tsMs int64, v Value) error {
	if w.f == nil {
		return os.ErrClosed
	}
	if w.finalized {
		return fmt.Errorf("%w: %s", ErrFinalized, w.path)
	}
	if w.dirty {
		if err := w.rescan(); err != nil {
			return err
		}
	}
	if tsMs < 0 {
		return fmt.Errorf("tsdb: negative timestamp %d", tsMs)
	}
	if len(name) > 0xff {
		return fmt.Errorf("%w: %q (%d bytes)", ErrNameTooLong, name, len(name))
	}

	// Validate the payload before touching channel or timestamp state.
	payload, err := EncodeValue(w.scratch[:0], formatID, v)
	if err != nil {
		return err
	}
	w.scratch = payload[:0]

	buf := make([]byte, 0, len(payload)+len(name)+16)

	def, isNew, err := w.reg.Allocate(name, formatID)
	if err != nil {
		return err
	}
	if isNew {
		buf = appendChannelDef(buf, def)
	}
	buf, newTS := appendTimeEntry(buf, w.tsMs, w.hasTS, tsMs)
	if def.ID <= MaxChannelID8 {
		buf = append(buf, byte(def.ID))
	} else {
		buf = append(buf, entryValue16)
		buf = appendU16(buf, def.ID)
	}
	buf = append(buf, payload...)

	if err := writeFull(w.f, buf); err != nil {
		// The in-memory state may be ahead of the file now.
		w.dirty = true
		return err
	}
	w.tsMs = newTS
	w.hasTS = true
	return nil
}

// AppendFloat appends a numeric sample. A series not yet defined in this
// file gets a double format carrying the decimals display hint; an
// existing definition keeps its format.
func (w *Writer) AppendFloat(name string, value float64, decimals int, tsMs int64) error {
	formatID := DoubleFormatForDecimals(decimals)
	if def, ok := w.reg.LookupName(name); ok {
		formatID = def.FormatID
	}
	return w.Append(name, formatID, tsMs, Float64Value(value))
}

// AppendString appends a string sample, defaulting new series to the
// 8-byte length prefix format.
func (w *Writer) AppendString(name, value string, tsMs int64) error {
	formatID := FormatStringU64
	if def, ok := w.reg.LookupName(name); ok {
		formatID = def.FormatID
	}
	return w.Append(name, formatID, tsMs, StringValue(value))
}

// Finalize appends the end-of-file marker and syncs. The file accepts no
// further appends, from this writer or any later one.
func (w *Writer) Finalize() error {
	if w.f == nil {
		return os.ErrClosed
	}
	if w.finalized {
		return nil
	}
	if w.dirty {
		if err := w.rescan(); err != nil {
			return err
		}
	}
	if err := writeFull(w.f, []byte{entryEOF}); err != nil {
		w.dirty = true
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	w.finalized = true
	return nil
}

// Close syncs and releases the file and its lock. Per-append durability is
// not guaranteed; the sync here is the durability barrier.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	f := w.f
	w.f = nil
	syncErr := f.Sync()
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Path returns the day file path.
func (w *Writer) Path() string { return w.path }

// Registry exposes the writer's channel table.
func (w *Writer) Registry() *Registry { return w.reg }

// LastTimestamp returns the current timestamp state.
func (w *Writer) LastTimestamp() (int64, bool) { return w.tsMs, w.hasTS }

func appendChannelDef(buf []byte, def *ChannelDef) []byte {
	if def.ID <= MaxChannelID8 {
		buf = append(buf, entryChannelDef8, byte(def.ID))
	} else {
		buf = append(buf, entryChannelDef16)
		buf = appendU16(buf, def.ID)
	}
	buf = append(buf, def.FormatID, byte(len(def.Name)))
	return append(buf, def.Name...)
}

// appendTimeEntry emits the narrowest time entry moving the stream clock
// from (lastMs, hasLast) to tsMs. A zero delta emits nothing; a backward
// or over-wide delta falls back to an absolute entry.
func appendTimeEntry(buf []byte, lastMs int64, hasLast bool, tsMs int64) ([]byte, int64) {
	if !hasLast || tsMs < lastMs {
		buf = append(buf, entryTimeAbsolute)
		return appendU64(buf, uint64(tsMs)), tsMs
	}
	delta := uint64(tsMs - lastMs)
	switch {
	case delta == 0:
	case delta <= 0xff:
		buf = append(buf, entryTimeRel8, byte(delta))
	case delta <= 0xffff:
		buf = append(buf, entryTimeRel16)
		buf = appendU16(buf, uint16(delta))
	case delta <= 0xffffff:
		buf = append(buf, entryTimeRel24)
		buf = appendU24(buf, uint32(delta))
	case delta <= 0xffffffff:
		buf = append(buf, entryTimeRel32)
		buf = appendU32(buf, uint32(delta))
	default:
		buf = append(buf, entryTimeAbsolute)
		buf = appendU64(buf, uint64(tsMs))
	}
	return buf, tsMs
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
