package api

import (
	"github.com/chronofile/tsdb/internal/query"
	"github.com/chronofile/tsdb/pkg/tsdb"
)

type SeriesResponse struct {
	Start  int64    `json:"start"`
	End    int64    `json:"end"`
	Files  []string `json:"files"`
	Series []string `json:"series"`
}

// Point is one events response entry: a raw sample carries Value, a
// downsampled bucket carries Start/End/Count/Min/Avg/Max.
type Point struct {
	Timestamp int64       `json:"timestamp"`
	Value     *tsdb.Value `json:"value,omitempty"`
	Start     *int64      `json:"start,omitempty"`
	End       *int64      `json:"end,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Min       *float64    `json:"min,omitempty"`
	Avg       *float64    `json:"avg,omitempty"`
	Max       *float64    `json:"max,omitempty"`
}

type EventsResponse struct {
	Series             string   `json:"series"`
	Start              int64    `json:"start"`
	End                int64    `json:"end"`
	RequestedMaxEvents int      `json:"requestedMaxEvents"`
	ReturnedPoints     int      `json:"returnedPoints"`
	Downsampled        bool     `json:"downsampled"`
	DecimalPlaces      int      `json:"decimalPlaces"`
	Files              []string `json:"files"`
	Points             []Point  `json:"points"`
	Note               string   `json:"note,omitempty"`
}

type StatsResponse struct {
	Series        string      `json:"series"`
	Start         int64       `json:"start"`
	End           int64       `json:"end"`
	Count         int         `json:"count"`
	CurrentValue  *tsdb.Value `json:"currentValue,omitempty"`
	MaxValue      *float64    `json:"maxValue,omitempty"`
	DecimalPlaces int         `json:"decimalPlaces"`
	Files         []string    `json:"files"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func eventsResponse(series string, startMs, endMs int64, maxEvents int, res query.EventsResult) EventsResponse {
	points := make([]Point, 0, len(res.Raw)+len(res.Buckets))
	if res.Downsampled {
		for _, b := range res.Buckets {
			b := b
			points = append(points, Point{
				Timestamp: b.TimestampMs,
				Start:     &b.StartMs,
				End:       &b.EndMs,
				Count:     &b.Count,
				Min:       &b.Min,
				Avg:       &b.Avg,
				Max:       &b.Max,
			})
		}
	} else {
		for _, e := range res.Raw {
			e := e
			points = append(points, Point{Timestamp: e.TimestampMs, Value: &e.Value})
		}
	}

	out := EventsResponse{
		Series:             series,
		Start:              startMs,
		End:                endMs,
		RequestedMaxEvents: maxEvents,
		ReturnedPoints:     len(points),
		Downsampled:        res.Downsampled,
		DecimalPlaces:      res.DecimalPlaces,
		Files:              res.Files,
		Points:             points,
	}
	if res.Truncated {
		out.Note = "Series is non-numeric; returned first maxEvents without min/avg/max aggregation."
	}
	return out
}
