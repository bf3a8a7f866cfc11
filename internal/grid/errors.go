package grid

import (
	"fmt"
	"time"
)

// LengthMismatchError is returned when the latitude and longitude
// sequences of a query have different lengths.
type LengthMismatchError struct {
	Lats int
	Lons int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("latitudes and longitudes do not match length: %d != %d", e.Lats, e.Lons)
}

// InvalidQueryError is returned for structurally invalid queries, such as a
// query without points.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// InvalidWindowError is returned when a time window is reversed or falls
// outside the dataset history. The window is never swapped or clamped.
type InvalidWindowError struct {
	Start time.Time
	End   time.Time
	// Min and Max are the dataset history bounds. They are zero when the
	// window was rejected for being reversed.
	Min time.Time
	Max time.Time
}

func (e *InvalidWindowError) Error() string {
	if e.Start.After(e.End) {
		return fmt.Sprintf("history start %s is after history end %s",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	return fmt.Sprintf("history [%s, %s] not in the range of history [%s, %s]",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339),
		e.Min.Format(time.RFC3339), e.Max.Format(time.RFC3339))
}

// OutOfRangeError is returned in strict mode when query points fall
// outside the spatial coverage.
type OutOfRangeError struct {
	// Indices of the offending points within the query.
	Indices []int
	Lat     float64 // first offending latitude
	Lon     float64 // first offending longitude
	Bounds  Bounds
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%d point(s) not in the box, first (%v, %v): lat range [%v, %v], lon range [%v, %v]",
		len(e.Indices), e.Lat, e.Lon,
		e.Bounds.LatMin, e.Bounds.LatMax, e.Bounds.LonMin, e.Bounds.LonMax)
}

// InvalidDatasetError is returned at construction time when a dataset is
// empty or its axes are malformed.
type InvalidDatasetError struct {
	Variable string
	Reason   string
}

func (e *InvalidDatasetError) Error() string {
	if e.Variable == "" {
		return "invalid dataset: " + e.Reason
	}
	return fmt.Sprintf("invalid dataset %q: %s", e.Variable, e.Reason)
}
