// Package era5 reads ERA5 single-level NetCDF files as gridded datasets.
package era5

import (
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/rtm0/era5query/internal/grid"
)

// Options selects the variables of a file. Zero values pick the ERA5
// defaults.
type Options struct {
	// Variable is the data variable to read. Empty means the first variable
	// that is not a coordinate axis.
	Variable string
	// TimeVar defaults to "time", falling back to "valid_time".
	TimeVar string
	// LatVar defaults to "latitude".
	LatVar string
	// LonVar defaults to "longitude".
	LonVar string
}

func (o Options) withDefaults() Options {
	if o.LatVar == "" {
		o.LatVar = "latitude"
	}
	if o.LonVar == "" {
		o.LonVar = "longitude"
	}
	return o
}

// Dataset is a grid.Dataset backed by a NetCDF file. Reads are serialized
// because the underlying reader shares one file handle.
type Dataset struct {
	nc       api.Group
	path     string
	variable string
	times    []time.Time
	lats     []float64
	lons     []float64
	values   api.VarGetter
	pack     packing
	identity string

	mu sync.Mutex
}

var (
	_ grid.Dataset    = (*Dataset)(nil)
	_ grid.Identifier = (*Dataset)(nil)
)

// Open opens an ERA5 NetCDF file. Malformed files yield a
// *grid.InvalidDatasetError.
func Open(path string, opts Options) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	ds, err := newDataset(nc, path, opts.withDefaults())
	if err != nil {
		nc.Close()
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	ds.identity = fmt.Sprintf("%s:%d:%d", path, fi.Size(), fi.ModTime().UnixNano())
	return ds, nil
}

func newDataset(nc api.Group, path string, opts Options) (*Dataset, error) {
	ds := &Dataset{nc: nc, path: path}

	timeVar := opts.TimeVar
	if timeVar == "" {
		timeVar = "time"
		if !slices.Contains(nc.ListVariables(), timeVar) && slices.Contains(nc.ListVariables(), "valid_time") {
			timeVar = "valid_time"
		}
	}

	ds.variable = opts.Variable
	if ds.variable == "" {
		ds.variable = firstDataVariable(nc, timeVar, opts.LatVar, opts.LonVar)
		if ds.variable == "" {
			return nil, &grid.InvalidDatasetError{Reason: path + " has no data variable"}
		}
	}
	invalid := func(format string, args ...any) error {
		return &grid.InvalidDatasetError{Variable: ds.variable, Reason: fmt.Sprintf(format, args...)}
	}

	var err error
	if ds.lats, err = axisValues(nc, opts.LatVar); err != nil {
		return nil, invalid("latitude axis: %v", err)
	}
	if ds.lons, err = axisValues(nc, opts.LonVar); err != nil {
		return nil, invalid("longitude axis: %v", err)
	}

	tvg, err := nc.GetVarGetter(timeVar)
	if err != nil {
		return nil, invalid("time axis %q: %v", timeVar, err)
	}
	offsets, err := varValues(tvg)
	if err != nil {
		return nil, invalid("time axis %q: %v", timeVar, err)
	}
	units, _ := attrString(tvg.Attributes(), "units")
	tu, err := parseTimeUnits(units)
	if err != nil {
		return nil, invalid("%v", err)
	}
	ds.times = tu.decode(offsets)

	ds.values, err = nc.GetVarGetter(ds.variable)
	if err != nil {
		return nil, invalid("%v", err)
	}
	dims := ds.values.Dimensions()
	want := []string{timeVar, opts.LatVar, opts.LonVar}
	if !slices.Equal(dims, want) {
		return nil, invalid("dimensions %v, want %v", dims, want)
	}
	ds.pack = readPacking(ds.values.Attributes())
	return ds, nil
}

// firstDataVariable returns the first variable that is not an axis, which is
// how single-variable ERA5 downloads are laid out.
func firstDataVariable(nc api.Group, axes ...string) string {
	for _, name := range nc.ListVariables() {
		if slices.Contains(axes, name) {
			continue
		}
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			continue
		}
		if len(vg.Dimensions()) == 3 {
			return name
		}
	}
	return ""
}

func axisValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, err
	}
	return varValues(vg)
}

func varValues(vg api.VarGetter) ([]float64, error) {
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	return toFloat64s(v)
}

// Variable implements grid.Dataset.
func (d *Dataset) Variable() string { return d.variable }

// Times implements grid.Dataset.
func (d *Dataset) Times() []time.Time { return d.times }

// Latitudes implements grid.Dataset.
func (d *Dataset) Latitudes() []float64 { return d.lats }

// Longitudes implements grid.Dataset.
func (d *Dataset) Longitudes() []float64 { return d.lons }

// ReadStep reads the grid at time index t and unpacks it.
func (d *Dataset) ReadStep(t int) ([][]float64, error) {
	d.mu.Lock()
	v, err := d.values.GetSlice(int64(t), int64(t)+1)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	step, err := firstPlane(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.variable, err)
	}
	for _, row := range step {
		for j := range row {
			row[j] = d.pack.unpack(row[j])
		}
	}
	return step, nil
}

// Identity names the file by path, size and modification time.
func (d *Dataset) Identity() string { return d.identity }

// Close closes the underlying file.
func (d *Dataset) Close() {
	d.nc.Close()
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (d *Dataset) Summary() []any {
	summary := []any{
		"path", d.path,
		"variable", d.variable,
		"dims", []string{"time", "latitude", "longitude"},
		"tsCnt", len(d.times),
		"laCnt", len(d.lats),
		"loCnt", len(d.lons),
	}
	if len(d.times) > 0 {
		summary = append(summary,
			"first", d.times[0].Format(time.RFC3339),
			"last", d.times[len(d.times)-1].Format(time.RFC3339))
	}
	return summary
}

// packing holds the CF packing attributes of a variable.
type packing struct {
	scale   float64
	offset  float64
	missing []float64
}

func readPacking(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		p.offset = v
	}
	for _, name := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(attrs, name); ok {
			p.missing = append(p.missing, v)
		}
	}
	return p
}

func (p packing) unpack(raw float64) float64 {
	if math.IsNaN(raw) {
		return raw
	}
	for _, m := range p.missing {
		if raw == m {
			return math.NaN()
		}
	}
	return raw*p.scale + p.offset
}
