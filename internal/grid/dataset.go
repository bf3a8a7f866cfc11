package grid

import (
	"fmt"
	"time"
)

// Dataset is a read-only cube of one scalar variable over three ordered
// axes: time, latitude and longitude. Implementations own the backing
// storage; the engine only borrows them.
type Dataset interface {
	// Variable returns the name of the scalar variable.
	Variable() string
	// Times returns the time axis in ascending order.
	Times() []time.Time
	// Latitudes returns the latitude axis. It may be ascending or descending.
	Latitudes() []float64
	// Longitudes returns the longitude axis. It may be ascending or descending.
	Longitudes() []float64
	// ReadStep returns the values at time index t as values[lat][lon].
	// Missing values are NaN.
	ReadStep(t int) ([][]float64, error)
}

// Identifier is implemented by datasets that can name their backing
// storage, for example a file path with its size and modification time.
// The identity becomes part of the engine fingerprint.
type Identifier interface {
	Identity() string
}

// Cube is an in-memory Dataset.
type Cube struct {
	Name string
	T    []time.Time
	Lat  []float64
	Lon  []float64
	// Values is indexed [time][lat][lon].
	Values [][][]float64
}

func (c *Cube) Variable() string      { return c.Name }
func (c *Cube) Times() []time.Time    { return c.T }
func (c *Cube) Latitudes() []float64  { return c.Lat }
func (c *Cube) Longitudes() []float64 { return c.Lon }

// ReadStep implements Dataset.
func (c *Cube) ReadStep(t int) ([][]float64, error) {
	if t < 0 || t >= len(c.Values) {
		return nil, fmt.Errorf("time index %d out of range [0, %d)", t, len(c.Values))
	}
	return c.Values[t], nil
}
