package grid

import "time"

// Validator checks query points and time windows against a Coverage.
// It has no side effects; callers decide whether a failed check is fatal.
type Validator struct {
	cov *Coverage
}

// NewValidator returns a Validator for cov.
func NewValidator(cov *Coverage) *Validator {
	return &Validator{cov: cov}
}

// PointInBox reports whether (lat, lon) lies inside the inclusive bounding box.
func (v *Validator) PointInBox(lat, lon float64) bool {
	b := v.cov.bounds
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// AllPointsInBox reports whether every index-aligned pair is inside the box.
// It stops at the first point outside.
func (v *Validator) AllPointsInBox(lats, lons []float64) (bool, error) {
	if len(lats) != len(lons) {
		return false, &LengthMismatchError{Lats: len(lats), Lons: len(lons)}
	}
	for i := range lats {
		if !v.PointInBox(lats[i], lons[i]) {
			return false, nil
		}
	}
	return true, nil
}

// OutsidePoints returns the indices of the points outside the box.
func (v *Validator) OutsidePoints(lats, lons []float64) ([]int, error) {
	if len(lats) != len(lons) {
		return nil, &LengthMismatchError{Lats: len(lats), Lons: len(lons)}
	}
	var out []int
	for i := range lats {
		if !v.PointInBox(lats[i], lons[i]) {
			out = append(out, i)
		}
	}
	return out, nil
}

// WindowInHistory reports whether [start, end] lies inside the dataset
// history. A reversed window is always an error, whatever the coverage.
func (v *Validator) WindowInHistory(start, end time.Time) (bool, error) {
	if start.After(end) {
		return false, &InvalidWindowError{Start: start, End: end}
	}
	return !start.Before(v.cov.historyMin) && !end.After(v.cov.historyMax), nil
}
