package tsdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDayFileNameRoundTrip(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)
	name := DayFileName(day)
	if name != "data_2026-02-13.tsdb" {
		t.Fatalf("name = %q", name)
	}
	parsed, ok := ParseDayFileName(name)
	if !ok || !parsed.Equal(day) {
		t.Fatalf("parsed %v, %v", parsed, ok)
	}

	for _, bad := range []string{"data.tsdb", "data_2026-02-13.txt", "x_2026-02-13.tsdb", "data_2026-2-13.tsdb"} {
		if _, ok := ParseDayFileName(bad); ok {
			t.Fatalf("%q parsed as a day file", bad)
		}
	}
}

func TestUTCDay(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 2, 13, 23, 59, 59, 0, time.UTC).UnixMilli()
	if got := UTCDay(ts); got != time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("UTCDay = %v", got)
	}
	if got := UTCDay(ts + 1000); got != time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("UTCDay after midnight = %v", got)
	}
}

func TestCandidateFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mk := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mk("data_2026-02-12.tsdb")
	mk("data_2026-02-13.tsdb")
	mk("data_2026-02-15.tsdb")
	mk("unrelated.txt")

	start := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2026, 2, 15, 1, 0, 0, 0, time.UTC).UnixMilli()
	files := CandidateFiles(dir, start, end)
	if len(files) != 2 {
		t.Fatalf("files = %v", files)
	}
	if filepath.Base(files[0]) != "data_2026-02-13.tsdb" || filepath.Base(files[1]) != "data_2026-02-15.tsdb" {
		t.Fatalf("files = %v", files)
	}

	// Outside every dated file, the legacy undated file is the fallback.
	mk("data.tsdb")
	files = CandidateFiles(dir, 0, 1000)
	if len(files) != 1 || filepath.Base(files[0]) != "data.tsdb" {
		t.Fatalf("fallback files = %v", files)
	}
}

func TestStoreDayRollover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ts1 := time.Date(2026, 2, 13, 23, 59, 59, 0, time.UTC).UnixMilli()
	ts2 := time.Date(2026, 2, 14, 0, 0, 1, 0, time.UTC).UnixMilli()
	if err := store.AppendFloat("temp", 21.5, 1, ts1); err != nil {
		t.Fatalf("append day 1: %v", err)
	}
	if err := store.AppendFloat("temp", 21.6, 1, ts2); err != nil {
		t.Fatalf("append day 2: %v", err)
	}

	// The rollover finalized the first day.
	day1, err := os.ReadFile(filepath.Join(dir, "data_2026-02-13.tsdb"))
	if err != nil {
		t.Fatalf("read day 1: %v", err)
	}
	if day1[len(day1)-1] != entryEOF {
		t.Fatalf("day 1 not finalized: %x", day1[len(day1)-4:])
	}

	// A late sample for the finalized day is refused.
	if err := store.AppendFloat("temp", 21.7, 1, ts1); err == nil {
		t.Fatalf("late append succeeded")
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The second day stays open for appends.
	day2 := filepath.Join(dir, "data_2026-02-14.tsdb")
	values := valueRecords(readRecords(t, day2))
	if len(values) != 1 || values[0].Value.Float != 21.6 {
		t.Fatalf("day 2 values %+v", values)
	}
}
