package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/chronofile/tsdb/internal/logger"
	"github.com/chronofile/tsdb/internal/query"
	"github.com/chronofile/tsdb/pkg/tsdb"
)

var testDay = time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)

func newTestEcho(t *testing.T) (*echo.Echo, int64) {
	t.Helper()
	dir := t.TempDir()
	base := testDay.UnixMilli()

	path := filepath.Join(dir, tsdb.DayFileName(testDay))
	w, err := tsdb.OpenWriter(path)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Append("temp", 0x22, base+int64(i*1000), tsdb.Float64Value(20+float64(i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.AppendString("state", "running", base+1000); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e := echo.New()
	NewServer(query.NewEngine(dir, logger.Default()), logger.Default()).Register(e)
	return e, base
}

func doGet(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSeriesEndpoint(t *testing.T) {
	t.Parallel()

	e, base := newTestEcho(t)
	rec := doGet(t, e, "/api/series?start=0&end="+itoa(base+10_000))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[SeriesResponse](t, rec)
	if len(res.Series) != 2 || res.Series[0] != "state" || res.Series[1] != "temp" {
		t.Fatalf("series %v", res.Series)
	}
	if len(res.Files) != 1 || res.Files[0] != "data_2026-02-13.tsdb" {
		t.Fatalf("files %v", res.Files)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestEventsEndpoint(t *testing.T) {
	t.Parallel()

	e, base := newTestEcho(t)
	rec := doGet(t, e, "/api/events?series=temp&start="+itoa(base)+"&end="+itoa(base+10_000)+"&maxEvents=100")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[EventsResponse](t, rec)
	if res.Downsampled || res.ReturnedPoints != 5 || len(res.Points) != 5 {
		t.Fatalf("result %+v", res)
	}
	if res.Points[0].Value == nil {
		t.Fatalf("first point %+v", res.Points[0])
	}
	if v, ok := res.Points[0].Value.Numeric(); !ok || v != 20 {
		t.Fatalf("first point value %+v", res.Points[0].Value)
	}
	if res.DecimalPlaces != 2 {
		t.Fatalf("decimals %d", res.DecimalPlaces)
	}
}

func TestEventsEndpointDownsamples(t *testing.T) {
	t.Parallel()

	e, base := newTestEcho(t)
	rec := doGet(t, e, "/api/events?series=temp&start="+itoa(base)+"&end="+itoa(base+10_000)+"&maxEvents=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[EventsResponse](t, rec)
	if !res.Downsampled || len(res.Points) == 0 {
		t.Fatalf("result %+v", res)
	}
	p := res.Points[0]
	if p.Min == nil || p.Avg == nil || p.Max == nil || p.Count == nil {
		t.Fatalf("bucket point %+v", p)
	}
}

func TestEventsEndpointValidation(t *testing.T) {
	t.Parallel()

	e, base := newTestEcho(t)
	cases := []string{
		"/api/events?start=0&end=1&maxEvents=5",                          // missing series
		"/api/events?series=temp&start=abc&end=1&maxEvents=5",            // bad start
		"/api/events?series=temp&start=5&end=1&maxEvents=5",              // end < start
		"/api/events?series=temp&start=0&end=" + itoa(base) + "",         // missing maxEvents
		"/api/events?series=temp&start=0&end=" + itoa(base) + "&maxEvents=0",
	}
	for _, target := range cases {
		rec := doGet(t, e, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", target, rec.Code)
		}
		res := decodeBody[ErrorResponse](t, rec)
		if res.Error.Code != "bad_request" {
			t.Fatalf("%s: code %q", target, res.Error.Code)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	e, base := newTestEcho(t)
	rec := doGet(t, e, "/api/stats?series=temp&start="+itoa(base)+"&end="+itoa(base+10_000))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[StatsResponse](t, rec)
	if res.Count != 5 {
		t.Fatalf("count %d", res.Count)
	}
	if res.MaxValue == nil || *res.MaxValue != 24 {
		t.Fatalf("max %+v", res.MaxValue)
	}
	// The fixture's samples are days old, so no current value.
	if res.CurrentValue != nil {
		t.Fatalf("current %+v", res.CurrentValue)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"1700000000":           1_700_000_000_000, // epoch seconds
		"1700000000000":        1_700_000_000_000, // epoch milliseconds
		"2026-02-15T11:00:00Z": time.Date(2026, 2, 15, 11, 0, 0, 0, time.UTC).UnixMilli(),
		"2026-02-15T11:00:00":  time.Date(2026, 2, 15, 11, 0, 0, 0, time.UTC).UnixMilli(),
		"2026-02-15":           time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}
	for in, want := range cases {
		got, err := parseTimestamp(in)
		if err != nil || got != want {
			t.Fatalf("parseTimestamp(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "nonsense", "2026-13-40"} {
		if _, err := parseTimestamp(bad); err == nil {
			t.Fatalf("parseTimestamp(%q) succeeded", bad)
		}
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
