package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/chronofile/tsdb/pkg/tsdb"
)

// Event is one decoded sample of a series within a single file.
type Event struct {
	TimestampMs int64
	Value       tsdb.Value
}

// cachedFile holds the parsed state of one day file. The writer only ever
// appends, so a grown file resumes parsing at parsedOffset instead of
// rescanning from the header; the decoder's stop-at-last-complete-entry
// rule keeps the resumed parse on entry boundaries even while the file is
// being written.
type cachedFile struct {
	mtimeNs int64
	size    int64

	parsedOffset int64
	reg          *tsdb.Registry
	tsMs         int64
	hasTS        bool
	endedWithEOF bool

	events  map[string][]Event
	formats map[string]byte
}

// fileCache keeps one cachedFile per path, refreshed on stat changes.
type fileCache struct {
	mu    sync.Mutex
	files map[string]*cachedFile
}

func newFileCache() *fileCache {
	return &fileCache{files: make(map[string]*cachedFile)}
}

func (fc *fileCache) get(ctx context.Context, path string) (*cachedFile, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	c := fc.files[path]
	if c != nil && st.Size() == c.size && statMtimeNs(st) == c.mtimeNs {
		return c, nil
	}
	if c != nil && st.Size() >= c.parsedOffset && !c.endedWithEOF {
		if err := fc.refresh(ctx, path, st, c); err != nil {
			// The entry may hold a half-applied chunk now; drop it so the
			// next query rebuilds from scratch.
			delete(fc.files, path)
			return nil, err
		}
		return c, nil
	}
	if c != nil && c.endedWithEOF {
		if st.Size() == c.parsedOffset {
			c.mtimeNs = statMtimeNs(st)
			c.size = st.Size()
			return c, nil
		}
		if st.Size() > c.parsedOffset {
			return nil, &tsdb.FormatError{Path: path, Offset: c.parsedOffset, Err: tsdb.ErrTruncated}
		}
	}

	c, err = fc.build(ctx, path, st)
	if err != nil {
		delete(fc.files, path)
		return nil, err
	}
	fc.files[path] = c
	return c, nil
}

func (fc *fileCache) build(ctx context.Context, path string, st os.FileInfo) (*cachedFile, error) {
	data, err := readShared(path, 0)
	if err != nil {
		return nil, err
	}
	c := &cachedFile{
		mtimeNs: statMtimeNs(st),
		size:    st.Size(),
		events:  make(map[string][]Event),
		formats: make(map[string]byte),
	}
	dec, err := tsdb.NewFileDecoder(path, data, nil)
	if err != nil {
		return nil, err
	}
	if err := c.consume(ctx, dec); err != nil {
		return nil, err
	}
	return c, nil
}

func (fc *fileCache) refresh(ctx context.Context, path string, st os.FileInfo, c *cachedFile) error {
	data, err := readShared(path, c.parsedOffset)
	if err != nil {
		return err
	}
	dec := tsdb.NewStreamDecoder(path, data, c.parsedOffset, c.reg)
	if c.hasTS {
		dec.RestoreTimestamp(c.tsMs)
	}
	if err := c.consume(ctx, dec); err != nil {
		return err
	}
	c.mtimeNs = statMtimeNs(st)
	c.size = st.Size()
	return nil
}

// consume drains the decoder into the cache state.
func (c *cachedFile) consume(ctx context.Context, dec *tsdb.Decoder) error {
	for {
		rec, err := dec.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch rec.Kind {
		case tsdb.RecordChannelDefined:
			if _, ok := c.formats[rec.Channel.Name]; !ok {
				c.formats[rec.Channel.Name] = rec.Channel.FormatID
			}
		case tsdb.RecordValue:
			name := rec.Channel.Name
			c.events[name] = append(c.events[name], Event{
				TimestampMs: rec.TimestampMs,
				Value:       rec.Value,
			})
		}
	}
	c.parsedOffset = dec.Offset()
	c.reg = dec.Registry()
	c.tsMs, c.hasTS = dec.Timestamp()
	c.endedWithEOF = dec.Finalized()
	return nil
}

// eventsInWindow returns the series' samples within [startMs, endMs].
func (c *cachedFile) eventsInWindow(series string, startMs, endMs int64) []Event {
	events := c.events[series]
	if len(events) == 0 {
		return nil
	}
	if startMs <= events[0].TimestampMs && events[len(events)-1].TimestampMs <= endMs {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.TimestampMs >= startMs && e.TimestampMs <= endMs {
			out = append(out, e)
		}
	}
	return out
}

func statMtimeNs(st os.FileInfo) int64 { return st.ModTime().UnixNano() }

// readShared reads the file from offset to its current end under a
// best-effort shared lock. The writer holds an exclusive lock on the file
// it is appending to; when the shared lock is unavailable the read
// proceeds anyway, which is safe because the file only grows and the
// decoder stops at the last complete entry.
func readShared(path string, offset int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if unix.Flock(int(f.Fd()), unix.LOCK_SH|unix.LOCK_NB) == nil {
		defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
