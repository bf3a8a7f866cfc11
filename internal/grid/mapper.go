package grid

import (
	"math"
	"sort"
)

// tieTolerance is the fraction of a grid step under which two distances
// count as equal. Decimal midpoints such as 42.35 on a 0.1 degree axis are
// not exactly halfway in binary.
const tieTolerance = 1e-9

// Point is a (latitude, longitude) pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Snapped is the result of mapping a batch of query points onto the grid.
// All slices are index-aligned with the query: element i describes query
// point i.
type Snapped struct {
	Original []Point
	Approx   []Point
	// LatIndex and LonIndex are storage indices into the dataset axes.
	LatIndex []int
	LonIndex []int
}

// Len returns the number of points.
func (s *Snapped) Len() int { return len(s.Original) }

// axis is an ascending view over a monotonic coordinate axis.
type axis struct {
	values []float64
	// storage maps a position in values back to the dataset index.
	storage []int
}

func newAxis(v []float64) axis {
	a := axis{values: make([]float64, len(v)), storage: make([]int, len(v))}
	desc := len(v) > 1 && v[0] > v[len(v)-1]
	for i := range v {
		j := i
		if desc {
			j = len(v) - 1 - i
		}
		a.values[i] = v[j]
		a.storage[i] = j
	}
	return a
}

// nearest returns the position of the grid value closest to x. Ties go to
// the smaller value and values beyond either end clamp to that end.
func (a axis) nearest(x float64) int {
	n := len(a.values)
	i := sort.SearchFloat64s(a.values, x)
	switch {
	case i == 0:
		return 0
	case i == n:
		return n - 1
	}
	lo, hi := a.values[i-1], a.values[i]
	dLow, dHigh := x-lo, hi-x
	if dLow <= dHigh || math.Abs(dLow-dHigh) <= tieTolerance*(hi-lo) {
		return i - 1
	}
	return i
}

// Mapper snaps arbitrary coordinates to the nearest grid coordinates, one
// axis at a time. It does not interpolate.
type Mapper struct {
	lat axis
	lon axis
}

// NewMapper builds a Mapper over the axes of cov.
func NewMapper(cov *Coverage) *Mapper {
	return &Mapper{lat: newAxis(cov.lats), lon: newAxis(cov.lons)}
}

// SnapLat returns the nearest latitude grid value and its storage index.
func (m *Mapper) SnapLat(lat float64) (float64, int) {
	p := m.lat.nearest(lat)
	return m.lat.values[p], m.lat.storage[p]
}

// SnapLon returns the nearest longitude grid value and its storage index.
func (m *Mapper) SnapLon(lon float64) (float64, int) {
	p := m.lon.nearest(lon)
	return m.lon.values[p], m.lon.storage[p]
}

// Snap maps every (lats[i], lons[i]) pair to its nearest grid cell.
// Points outside the grid are clamped to the boundary.
func (m *Mapper) Snap(lats, lons []float64) (*Snapped, error) {
	if len(lats) != len(lons) {
		return nil, &LengthMismatchError{Lats: len(lats), Lons: len(lons)}
	}
	n := len(lats)
	s := &Snapped{
		Original: make([]Point, n),
		Approx:   make([]Point, n),
		LatIndex: make([]int, n),
		LonIndex: make([]int, n),
	}
	for i := range lats {
		s.Original[i] = Point{Lat: lats[i], Lon: lons[i]}
		s.Approx[i].Lat, s.LatIndex[i] = m.SnapLat(lats[i])
		s.Approx[i].Lon, s.LonIndex[i] = m.SnapLon(lons[i])
	}
	return s, nil
}
