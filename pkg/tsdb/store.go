package tsdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store routes appends into per-UTC-day files under one data directory.
// Samples are expected in roughly chronological order: when a sample for a
// later day arrives the previous day's file is finalized, and a sample for
// an already passed day is refused.
type Store struct {
	dir string

	mu  sync.Mutex
	day time.Time // UTC midnight of the open writer, zero when none
	w   *Writer
}

// OpenStore prepares a data directory for appending.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Append persists one sample into the day file owning its timestamp.
func (s *Store) Append(name string, formatID byte, tsMs int64, v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.writerFor(tsMs)
	if err != nil {
		return err
	}
	return w.Append(name, formatID, tsMs, v)
}

// AppendFloat persists a numeric sample, picking a double format from the
// decimals hint for series new to the day file.
func (s *Store) AppendFloat(name string, value float64, decimals int, tsMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.writerFor(tsMs)
	if err != nil {
		return err
	}
	return w.AppendFloat(name, value, decimals, tsMs)
}

// AppendString persists a string sample.
func (s *Store) AppendString(name, value string, tsMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.writerFor(tsMs)
	if err != nil {
		return err
	}
	return w.AppendString(name, value, tsMs)
}

// writerFor returns the open writer for the day owning tsMs, rolling the
// previous day over when the clock crosses UTC midnight. Rollover finalizes
// the finished file: once the store moved on, no more samples can arrive
// for it.
func (s *Store) writerFor(tsMs int64) (*Writer, error) {
	day := UTCDay(tsMs)
	if s.w != nil {
		switch {
		case day.Equal(s.day):
			return s.w, nil
		case day.Before(s.day):
			return nil, fmt.Errorf("tsdb: sample for %s after store moved to %s",
				day.Format(dayFileLayout), s.day.Format(dayFileLayout))
		}
		if err := s.w.Finalize(); err != nil {
			_ = s.w.Close()
			s.w = nil
			return nil, err
		}
		if err := s.w.Close(); err != nil {
			s.w = nil
			return nil, err
		}
		s.w = nil
	}

	w, err := OpenWriter(filepath.Join(s.dir, DayFileName(day)))
	if err != nil {
		return nil, err
	}
	s.w = w
	s.day = day
	return w, nil
}

// Dir returns the store's data directory.
func (s *Store) Dir() string { return s.dir }

// Close releases the current day's writer without finalizing it; the day
// may still receive samples from a later store instance.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}
