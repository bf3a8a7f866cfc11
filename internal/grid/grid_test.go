package grid

import (
	"math"
	"time"
)

var testStart = time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)

// tick returns round(v, 1), which matches a 0.1 degree grid exactly.
func tick(v float64) float64 {
	return math.Round(v*10) / 10
}

// franceCube builds an hourly cube over lat [42, 51.5] and lon [-5, 9] on a
// 0.1 degree grid. When descending is set the latitude axis runs north to
// south as in ERA5 files. The value at (t, la, lo) is t*1e6 + la*1e3 + lo,
// where la and lo are storage indices.
func franceCube(steps int, descending bool) *Cube {
	c := &Cube{Name: "t2m"}
	for t := 0; t < steps; t++ {
		c.T = append(c.T, testStart.Add(time.Duration(t)*time.Hour))
	}
	for i := 0; i < 96; i++ {
		c.Lat = append(c.Lat, tick(42+0.1*float64(i)))
	}
	if descending {
		for i, j := 0, len(c.Lat)-1; i < j; i, j = i+1, j-1 {
			c.Lat[i], c.Lat[j] = c.Lat[j], c.Lat[i]
		}
	}
	for i := 0; i < 141; i++ {
		c.Lon = append(c.Lon, tick(-5+0.1*float64(i)))
	}
	c.Values = make([][][]float64, steps)
	for t := range c.Values {
		c.Values[t] = make([][]float64, len(c.Lat))
		for la := range c.Lat {
			c.Values[t][la] = make([]float64, len(c.Lon))
			for lo := range c.Lon {
				c.Values[t][la][lo] = float64(t)*1e6 + float64(la)*1e3 + float64(lo)
			}
		}
	}
	return c
}

// indexOf returns the storage index of v in axis, or -1.
func indexOf(axis []float64, v float64) int {
	for i, x := range axis {
		if x == v {
			return i
		}
	}
	return -1
}

func timePtr(t time.Time) *time.Time { return &t }
