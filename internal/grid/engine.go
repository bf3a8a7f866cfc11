// Package grid retrieves point observations from a gridded
// (time, latitude, longitude) dataset by snapping arbitrary coordinates to
// the nearest grid cell.
package grid

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Query is a batch of points and an optional time window.
type Query struct {
	Lats []float64
	Lons []float64
	// Start and End bound the window inclusively. Nil means the first or
	// last timestamp of the dataset.
	Start *time.Time
	End   *time.Time
	// StrictBounds rejects points outside the spatial coverage. Otherwise
	// such points are clamped to the nearest boundary cell.
	StrictBounds bool
	// RawGrid makes GetData return the (time, point) view instead of a table.
	RawGrid bool
}

// Result holds either a Table or, when the query asked for the raw grid, a
// GridView.
type Result struct {
	Table *Table
	Grid  *GridView
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for clamping warnings and query tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine answers queries against one Dataset. It does not mutate anything
// after construction and is safe for concurrent use as long as the Dataset
// is.
type Engine struct {
	ds        Dataset
	coverage  *Coverage
	validator *Validator
	mapper    *Mapper
	logger    *slog.Logger

	// fingerprint identifies the dataset contents the engine answers from.
	fingerprint string
}

// New builds an Engine over ds, deriving its coverage once.
func New(ds Dataset, opts ...Option) (*Engine, error) {
	cov, err := NewCoverage(ds)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		ds:        ds,
		coverage:  cov,
		validator: NewValidator(cov),
		mapper:    NewMapper(cov),
		logger:    slog.Default(),

		fingerprint: fingerprint(ds, cov),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Variable returns the dataset variable name.
func (e *Engine) Variable() string { return e.ds.Variable() }

// Coverage returns the dataset coverage.
func (e *Engine) Coverage() *Coverage { return e.coverage }

// Validator returns the bounds validator.
func (e *Engine) Validator() *Validator { return e.validator }

// Fingerprint returns a stable identifier of the dataset behind the engine.
// Two engines over different files, axes or histories never share one.
func (e *Engine) Fingerprint() string { return e.fingerprint }

func fingerprint(ds Dataset, cov *Coverage) string {
	h := sha256.New()
	var b [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(b[:], v)
		h.Write(b[:])
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		h.Write([]byte(s))
	}

	writeString(ds.Variable())
	if id, ok := ds.(Identifier); ok {
		writeString(id.Identity())
	} else {
		writeString("")
	}
	writeUint(uint64(len(cov.times)))
	writeUint(uint64(cov.historyMin.UnixNano()))
	writeUint(uint64(cov.historyMax.UnixNano()))
	for _, axis := range [][]float64{cov.lats, cov.lons} {
		writeUint(uint64(len(axis)))
		writeUint(math.Float64bits(axis[0]))
		writeUint(math.Float64bits(axis[len(axis)-1]))
	}
	return ds.Variable() + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// GetData runs q and returns a Table, or a GridView when q.RawGrid is set.
func (e *Engine) GetData(ctx context.Context, q Query) (*Result, error) {
	g, err := e.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.RawGrid {
		return &Result{Grid: g}, nil
	}
	return &Result{Table: g.Flatten()}, nil
}

// Table runs q and returns the flattened table.
func (e *Engine) Table(ctx context.Context, q Query) (*Table, error) {
	g, err := e.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	return g.Flatten(), nil
}

// Select validates q, slices the time window and reads the nearest grid cell
// of every point at every timestamp in the window.
func (e *Engine) Select(ctx context.Context, q Query) (*GridView, error) {
	if len(q.Lats) != len(q.Lons) {
		return nil, &LengthMismatchError{Lats: len(q.Lats), Lons: len(q.Lons)}
	}
	if len(q.Lats) == 0 {
		return nil, &InvalidQueryError{Reason: "no points"}
	}
	for i := range q.Lats {
		if !finite(q.Lats[i]) || !finite(q.Lons[i]) {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("point %d (%v, %v) is not finite", i, q.Lats[i], q.Lons[i])}
		}
	}

	start, end := e.window(q)

	outside, err := e.validator.OutsidePoints(q.Lats, q.Lons)
	if err != nil {
		return nil, err
	}
	if len(outside) > 0 {
		if q.StrictBounds {
			first := outside[0]
			return nil, &OutOfRangeError{
				Indices: outside,
				Lat:     q.Lats[first],
				Lon:     q.Lons[first],
				Bounds:  e.coverage.bounds,
			}
		}
		for _, i := range outside {
			e.logger.Warn("GPS point not in the range, clamping to grid boundary",
				"variable", e.ds.Variable(), "index", i, "lat", q.Lats[i], "lon", q.Lons[i])
		}
	}

	ok, err := e.validator.WindowInHistory(start, end)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidWindowError{
			Start: start,
			End:   end,
			Min:   e.coverage.historyMin,
			Max:   e.coverage.historyMax,
		}
	}

	begin, limit := e.timeRange(start, end)
	snapped, err := e.mapper.Snap(q.Lats, q.Lons)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("selecting grid cells",
		"variable", e.ds.Variable(), "points", snapped.Len(), "steps", limit-begin,
		"start", start, "end", end)

	view := &GridView{
		Variable: e.ds.Variable(),
		Times:    append([]time.Time(nil), e.coverage.times[begin:limit]...),
		Points:   snapped.Original,
		Approx:   snapped.Approx,
		Values:   make([][]float64, 0, limit-begin),
	}
	for t := begin; t < limit; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step, err := e.ds.ReadStep(t)
		if err != nil {
			return nil, fmt.Errorf("read %s at %s: %w", e.ds.Variable(), e.coverage.times[t].Format(time.RFC3339), err)
		}
		values := make([]float64, snapped.Len())
		for p := range values {
			la, lo := snapped.LatIndex[p], snapped.LonIndex[p]
			if la >= len(step) || lo >= len(step[la]) {
				return nil, &InvalidDatasetError{
					Variable: e.ds.Variable(),
					Reason:   fmt.Sprintf("step %d has shape smaller than its axes", t),
				}
			}
			values[p] = step[la][lo]
		}
		view.Values = append(view.Values, values)
	}
	return view, nil
}

// window resolves the query window, defaulting to the full history.
func (e *Engine) window(q Query) (time.Time, time.Time) {
	start, end := e.coverage.historyMin, e.coverage.historyMax
	if q.Start != nil {
		start = q.Start.UTC()
	}
	if q.End != nil {
		end = q.End.UTC()
	}
	return start, end
}

// timeRange returns the half-open index range of timestamps within
// [start, end].
func (e *Engine) timeRange(start, end time.Time) (int, int) {
	ts := e.coverage.times
	begin := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(start) })
	limit := sort.Search(len(ts), func(i int) bool { return ts[i].After(end) })
	return begin, limit
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
