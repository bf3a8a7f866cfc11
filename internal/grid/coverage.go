package grid

import (
	"math"
	"time"
)

// Bounds is an inclusive spatial bounding box.
type Bounds struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Coverage holds the spatial and temporal extent of a dataset. It is
// computed once from the coordinate axes and never changes afterwards.
type Coverage struct {
	bounds     Bounds
	historyMin time.Time
	historyMax time.Time

	times []time.Time
	lats  []float64
	lons  []float64
}

// NewCoverage derives the coverage of ds.
func NewCoverage(ds Dataset) (*Coverage, error) {
	name := ds.Variable()
	times := ds.Times()
	lats := ds.Latitudes()
	lons := ds.Longitudes()

	if len(times) == 0 {
		return nil, &InvalidDatasetError{Variable: name, Reason: "time axis is empty"}
	}
	if err := checkAxis(name, "latitude", lats); err != nil {
		return nil, err
	}
	if err := checkAxis(name, "longitude", lons); err != nil {
		return nil, err
	}

	utc := make([]time.Time, len(times))
	for i, t := range times {
		utc[i] = t.UTC()
		if i > 0 && !utc[i].After(utc[i-1]) {
			return nil, &InvalidDatasetError{Variable: name, Reason: "time axis is not strictly ascending"}
		}
	}

	c := &Coverage{
		historyMin: utc[0],
		historyMax: utc[len(utc)-1],
		times:      utc,
		lats:       lats,
		lons:       lons,
	}
	c.bounds.LatMin, c.bounds.LatMax = axisRange(lats)
	c.bounds.LonMin, c.bounds.LonMax = axisRange(lons)
	return c, nil
}

func checkAxis(variable, axis string, v []float64) error {
	if len(v) == 0 {
		return &InvalidDatasetError{Variable: variable, Reason: axis + " axis is empty"}
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return &InvalidDatasetError{Variable: variable, Reason: axis + " axis contains non-finite values"}
		}
	}
	if len(v) < 2 {
		return nil
	}
	asc := v[1] > v[0]
	for i := 1; i < len(v); i++ {
		if (asc && v[i] <= v[i-1]) || (!asc && v[i] >= v[i-1]) {
			return &InvalidDatasetError{Variable: variable, Reason: axis + " axis is not strictly monotonic"}
		}
	}
	return nil
}

// axisRange returns the min and max of a monotonic axis.
func axisRange(v []float64) (float64, float64) {
	first, last := v[0], v[len(v)-1]
	if first > last {
		return last, first
	}
	return first, last
}

// SpatialBounds returns the inclusive latitude and longitude ranges.
func (c *Coverage) SpatialBounds() (latMin, latMax, lonMin, lonMax float64) {
	return c.bounds.LatMin, c.bounds.LatMax, c.bounds.LonMin, c.bounds.LonMax
}

// Bounds returns the spatial bounding box.
func (c *Coverage) Bounds() Bounds {
	return c.bounds
}

// TemporalBounds returns the first and last timestamps, in UTC.
func (c *Coverage) TemporalBounds() (historyMin, historyMax time.Time) {
	return c.historyMin, c.historyMax
}

// Times returns the UTC time axis. Callers must not modify it.
func (c *Coverage) Times() []time.Time {
	return c.times
}
