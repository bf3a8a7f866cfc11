package grid

import (
	"errors"
	"testing"
	"time"
)

func TestNewCoverage(t *testing.T) {
	for _, descending := range []bool{false, true} {
		cov, err := NewCoverage(franceCube(3, descending))
		if err != nil {
			t.Fatalf("NewCoverage(descending=%v) returned error: %v", descending, err)
		}
		latMin, latMax, lonMin, lonMax := cov.SpatialBounds()
		if latMin != 42 || latMax != 51.5 || lonMin != -5 || lonMax != 9 {
			t.Errorf("SpatialBounds() = (%v, %v, %v, %v), want (42, 51.5, -5, 9)", latMin, latMax, lonMin, lonMax)
		}
		hMin, hMax := cov.TemporalBounds()
		if !hMin.Equal(testStart) || !hMax.Equal(testStart.Add(2*time.Hour)) {
			t.Errorf("TemporalBounds() = (%v, %v)", hMin, hMax)
		}
	}
}

func TestNewCoverage_NormalizesToUTC(t *testing.T) {
	c := franceCube(2, false)
	paris := time.FixedZone("CEST", 2*3600)
	for i := range c.T {
		c.T[i] = c.T[i].In(paris)
	}
	cov, err := NewCoverage(c)
	if err != nil {
		t.Fatal(err)
	}
	hMin, _ := cov.TemporalBounds()
	if hMin.Location() != time.UTC {
		t.Errorf("expected UTC history bounds, got %v", hMin.Location())
	}
}

func TestNewCoverage_InvalidDataset(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Cube)
	}{
		{"empty time", func(c *Cube) { c.T = nil }},
		{"empty latitude", func(c *Cube) { c.Lat = nil }},
		{"empty longitude", func(c *Cube) { c.Lon = []float64{} }},
		{"unsorted latitude", func(c *Cube) { c.Lat[3], c.Lat[4] = c.Lat[4], c.Lat[3] }},
		{"duplicate longitude", func(c *Cube) { c.Lon[1] = c.Lon[0] }},
		{"descending time", func(c *Cube) { c.T[0], c.T[1] = c.T[1], c.T[0] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := franceCube(3, false)
			tt.mutate(c)
			_, err := NewCoverage(c)
			var dsErr *InvalidDatasetError
			if !errors.As(err, &dsErr) {
				t.Fatalf("expected InvalidDatasetError, got %v", err)
			}
			if dsErr.Variable != "t2m" {
				t.Errorf("expected variable t2m, got %q", dsErr.Variable)
			}
		})
	}
}

func TestNewCoverage_SinglePoint(t *testing.T) {
	c := &Cube{
		Name:   "tp",
		T:      []time.Time{testStart},
		Lat:    []float64{45},
		Lon:    []float64{2},
		Values: [][][]float64{{{1}}},
	}
	cov, err := NewCoverage(c)
	if err != nil {
		t.Fatal(err)
	}
	latMin, latMax, _, _ := cov.SpatialBounds()
	if latMin != 45 || latMax != 45 {
		t.Errorf("expected degenerate latitude range, got [%v, %v]", latMin, latMax)
	}
}
