package tsdb

import (
	"os"
	"path/filepath"
	"time"
)

const dayFileLayout = "2006-01-02"

// DayFileName returns the file name holding the given UTC day,
// data_YYYY-MM-DD.tsdb.
func DayFileName(day time.Time) string {
	return "data_" + day.UTC().Format(dayFileLayout) + ".tsdb"
}

// ParseDayFileName extracts the UTC day from a day-file name.
func ParseDayFileName(name string) (time.Time, bool) {
	const prefix, suffix = "data_", ".tsdb"
	if len(name) != len(prefix)+len(dayFileLayout)+len(suffix) {
		return time.Time{}, false
	}
	if name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dayFileLayout, name[len(prefix):len(name)-len(suffix)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// UTCDay truncates a millisecond timestamp to its UTC midnight.
func UTCDay(tsMs int64) time.Time {
	t := time.UnixMilli(tsMs).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayRange iterates the UTC days intersecting [startMs, endMs], both ends
// inclusive.
func DayRange(startMs, endMs int64, fn func(day time.Time) bool) {
	end := UTCDay(endMs)
	for day := UTCDay(startMs); !day.After(end); day = day.AddDate(0, 0, 1) {
		if !fn(day) {
			return
		}
	}
}

// CandidateFiles lists the existing day files intersecting the window in
// ascending date order. When no day file matches, a legacy undated
// data.tsdb file is used if present.
func CandidateFiles(dir string, startMs, endMs int64) []string {
	var files []string
	DayRange(startMs, endMs, func(day time.Time) bool {
		p := filepath.Join(dir, DayFileName(day))
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			files = append(files, p)
		}
		return true
	})
	if len(files) == 0 {
		fallback := filepath.Join(dir, "data.tsdb")
		if st, err := os.Stat(fallback); err == nil && st.Mode().IsRegular() {
			files = append(files, fallback)
		}
	}
	return files
}
