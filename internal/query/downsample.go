package query

import "math"

// Bucket is one aggregated point of a downsampled response, covering
// [StartMs, EndMs] with TimestampMs at the bucket midpoint.
type Bucket struct {
	TimestampMs int64
	StartMs     int64
	EndMs       int64
	Count       int
	Min         float64
	Avg         float64
	Max         float64
}

// downsampleNumeric reduces a numeric event sequence to at most maxEvents
// buckets over a uniform grid spanning [startMs, endMs]. It returns nil
// when the raw sequence already fits; empty buckets are omitted.
func downsampleNumeric(events []Event, maxEvents int, startMs, endMs int64, decimals int) []Bucket {
	if len(events) <= maxEvents {
		return nil
	}

	if endMs < startMs {
		endMs = startMs
	}
	span := endMs - startMs + 1
	bucketWidth := (span + int64(maxEvents) - 1) / int64(maxEvents)
	if bucketWidth < 1 {
		bucketWidth = 1
	}

	type acc struct {
		count    int
		min, max float64
		sum      float64
	}
	accs := make([]acc, maxEvents)
	for _, e := range events {
		idx := (e.TimestampMs - startMs) / bucketWidth
		if idx < 0 {
			idx = 0
		}
		if idx >= int64(maxEvents) {
			idx = int64(maxEvents) - 1
		}
		v, _ := e.Value.Numeric()
		a := &accs[idx]
		if a.count == 0 {
			a.min, a.max = v, v
		} else {
			a.min = math.Min(a.min, v)
			a.max = math.Max(a.max, v)
		}
		a.sum += v
		a.count++
	}

	buckets := make([]Bucket, 0, maxEvents)
	for i, a := range accs {
		if a.count == 0 {
			continue
		}
		bStart := startMs + int64(i)*bucketWidth
		bEnd := bStart + bucketWidth - 1
		if bEnd > endMs {
			bEnd = endMs
		}
		buckets = append(buckets, Bucket{
			TimestampMs: (bStart + bEnd) / 2,
			StartMs:     bStart,
			EndMs:       bEnd,
			Count:       a.count,
			Min:         roundTo(a.min, decimals),
			Avg:         roundTo(a.sum/float64(a.count), decimals),
			Max:         roundTo(a.max, decimals),
		})
	}
	return buckets
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
