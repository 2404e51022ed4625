package telemetry

import "time"

const (
	// DefaultSeriesWindow is the trailing window used when a series start is omitted.
	DefaultSeriesWindow = 24 * time.Hour
	DefaultSeriesLimit  = 1000
	MaxSeriesLimit      = 10000
)

// SeriesQuery selects readings of one device.
type SeriesQuery struct {
	DeviceID string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

// Bounds resolves the query window and limit against now.
func (q SeriesQuery) Bounds(now time.Time) (start, end time.Time, limit int, err error) {
	switch {
	case q.Limit < 0, q.Limit > MaxSeriesLimit:
		return time.Time{}, time.Time{}, 0, ErrInvalidQuery
	case q.Limit == 0:
		limit = DefaultSeriesLimit
	default:
		limit = q.Limit
	}
	end = now.UTC()
	if q.End != nil {
		end = q.End.UTC()
	}
	start = end.Add(-DefaultSeriesWindow)
	if q.Start != nil {
		start = q.Start.UTC()
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, 0, ErrInvalidQuery
	}
	return start, end, limit, nil
}
