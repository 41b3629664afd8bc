// Package query assembles time windows from one or more day files and
// exposes the three read operations the HTTP API serves: series listing,
// event streaming with downsampling, and window statistics.
package query

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"time"

	"github.com/chronofile/tsdb/internal/logger"
	"github.com/chronofile/tsdb/pkg/tsdb"
)

var (
	// ErrWindowInvalid reports a query window whose end precedes its start.
	ErrWindowInvalid = errors.New("query: window end before start")
	// ErrMaxEventsInvalid reports a non-positive maxEvents.
	ErrMaxEventsInvalid = errors.New("query: maxEvents must be positive")
	// ErrCancelled reports a query abandoned between records. No partial
	// results accompany it.
	ErrCancelled = errors.New("query: cancelled")
)

// currentWindowMs bounds how stale a sample may be to count as the
// "current" value in Stats.
const currentWindowMs = 60_000

// defaultDecimalPlaces is the rendering fallback when a window contributes
// no format information.
const defaultDecimalPlaces = 3

// Engine answers range queries over a data directory. Each file is decoded
// independently and results are joined by series name: channel ids are
// file-local and never cross file boundaries.
type Engine struct {
	dir   string
	cache *fileCache
	log   logger.Logger
	now   func() time.Time
}

func NewEngine(dir string, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		dir:   dir,
		cache: newFileCache(),
		log:   log,
		now:   time.Now,
	}
}

// SeriesList is the result of ListSeries.
type SeriesList struct {
	Series []string
	Files  []string
}

// EventsResult is the result of Events. Raw and Buckets are mutually
// exclusive, selected by Downsampled.
type EventsResult struct {
	Raw           []Event
	Buckets       []Bucket
	Downsampled   bool
	DecimalPlaces int
	Files         []string
	Truncated     bool // non-numeric series cut to maxEvents without aggregation
}

// StatsResult is the result of Stats. Current is the last sample in the
// window no older than a minute; Max is absent for string series.
type StatsResult struct {
	Count         int
	Current       *Event
	Max           *float64
	DecimalPlaces int
	Files         []string
}

// ListSeries reports the union of series names with samples in any file
// intersecting the window. Files that fail to parse are skipped, so one
// corrupt day does not hide the rest of the window.
func (e *Engine) ListSeries(ctx context.Context, startMs, endMs int64) (SeriesList, error) {
	if endMs < startMs {
		return SeriesList{}, ErrWindowInvalid
	}
	files := tsdb.CandidateFiles(e.dir, startMs, endMs)
	names := make(map[string]struct{})
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return SeriesList{}, ErrCancelled
		}
		c, err := e.cache.get(ctx, path)
		if err != nil {
			if ctxErr(err) {
				return SeriesList{}, ErrCancelled
			}
			e.log.Warn("skipping unreadable day file", "path", path, "error", err)
			continue
		}
		for name := range c.events {
			names[name] = struct{}{}
		}
	}

	out := SeriesList{
		Series: make([]string, 0, len(names)),
		Files:  baseNames(files),
	}
	for name := range names {
		out.Series = append(out.Series, name)
	}
	sort.Strings(out.Series)
	return out, nil
}

// Events streams the series' samples in the window, across files in day
// order. When the raw count exceeds maxEvents a numeric series is reduced
// to min/avg/max buckets on a uniform grid; a non-numeric series is cut to
// the first maxEvents samples instead.
func (e *Engine) Events(ctx context.Context, series string, startMs, endMs int64, maxEvents int) (EventsResult, error) {
	if endMs < startMs {
		return EventsResult{}, ErrWindowInvalid
	}
	if maxEvents <= 0 {
		return EventsResult{}, ErrMaxEventsInvalid
	}

	events, files, decimals, err := e.collect(ctx, series, startMs, endMs)
	if err != nil {
		return EventsResult{}, err
	}
	res := EventsResult{
		DecimalPlaces: decimals,
		Files:         baseNames(files),
	}

	numeric := true
	for _, ev := range events {
		if _, ok := ev.Value.Numeric(); !ok {
			numeric = false
			break
		}
	}
	if numeric {
		if buckets := downsampleNumeric(events, maxEvents, startMs, endMs, decimals); buckets != nil {
			res.Downsampled = true
			res.Buckets = buckets
			return res, nil
		}
		res.Raw = events
		return res, nil
	}

	if len(events) > maxEvents {
		events = events[:maxEvents]
		res.Truncated = true
	}
	res.Raw = events
	return res, nil
}

// Stats summarizes the series over the window.
func (e *Engine) Stats(ctx context.Context, series string, startMs, endMs int64) (StatsResult, error) {
	if endMs < startMs {
		return StatsResult{}, ErrWindowInvalid
	}
	events, files, decimals, err := e.collect(ctx, series, startMs, endMs)
	if err != nil {
		return StatsResult{}, err
	}

	res := StatsResult{
		Count:         len(events),
		DecimalPlaces: decimals,
		Files:         baseNames(files),
	}
	if len(events) > 0 {
		last := events[len(events)-1]
		if e.now().UnixMilli()-last.TimestampMs <= currentWindowMs {
			res.Current = &last
		}
	}
	var maxVal float64
	haveMax := false
	for _, ev := range events {
		v, ok := ev.Value.Numeric()
		if !ok {
			continue
		}
		if !haveMax || v > maxVal {
			maxVal = v
			haveMax = true
		}
	}
	if haveMax {
		res.Max = &maxVal
	}
	return res, nil
}

// collect gathers the series' windowed samples from every candidate file,
// sorted by timestamp, along with the maximum display hint observed.
func (e *Engine) collect(ctx context.Context, series string, startMs, endMs int64) ([]Event, []string, int, error) {
	files := tsdb.CandidateFiles(e.dir, startMs, endMs)
	var events []Event
	decimals := -1
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, ErrCancelled
		}
		c, err := e.cache.get(ctx, path)
		if err != nil {
			if ctxErr(err) {
				return nil, nil, 0, ErrCancelled
			}
			return nil, nil, 0, err
		}
		events = append(events, c.eventsInWindow(series, startMs, endMs)...)
		if formatID, ok := c.formats[series]; ok {
			if d := tsdb.DecimalPlaces(formatID); d > decimals {
				decimals = d
			}
		}
	}
	if decimals < 0 {
		decimals = defaultDecimalPlaces
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TimestampMs < events[j].TimestampMs
	})
	return events, files, decimals, nil
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
