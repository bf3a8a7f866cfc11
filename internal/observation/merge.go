package observation

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rtm0/era5query/internal/grid"
)

// ErrIncompatibleGrids is returned by Merge when two tables snapped the same
// query point to different grid cells.
var ErrIncompatibleGrids = errors.New("tables snap points to different grid cells")

// WideRow is one (point, time) observation of several variables.
type WideRow struct {
	Point           int
	Time            time.Time
	Longitude       float64
	ApproxLongitude float64
	Latitude        float64
	ApproxLatitude  float64
	// Values is aligned with WideTable.Variables. Missing values are NaN.
	Values []float64
}

// WideTable joins per-variable tables on query point and time.
type WideTable struct {
	Variables []string
	Rows      []WideRow
}

// Columns returns the column order: the five coordinate columns, then one
// column per variable.
func (w *WideTable) Columns() []string {
	return append([]string{"time", "longitude", "approximate_longitude", "latitude", "approximate_latitude"}, w.Variables...)
}

type rowKey struct {
	point int
	time  int64
}

// Merge joins tables produced by the same query. Rows keep the table
// ordering: by query point, then ascending time.
func Merge(tables []*grid.Table) (*WideTable, error) {
	w := &WideTable{Variables: make([]string, len(tables))}
	index := make(map[rowKey]int)
	for ti, t := range tables {
		w.Variables[ti] = t.Variable
		for _, r := range t.Rows {
			k := rowKey{point: r.Point, time: r.Time.UnixNano()}
			i, ok := index[k]
			if !ok {
				values := make([]float64, len(tables))
				for j := range values {
					values[j] = math.NaN()
				}
				w.Rows = append(w.Rows, WideRow{
					Point:           r.Point,
					Time:            r.Time,
					Longitude:       r.Longitude,
					ApproxLongitude: r.ApproxLongitude,
					Latitude:        r.Latitude,
					ApproxLatitude:  r.ApproxLatitude,
					Values:          values,
				})
				i = len(w.Rows) - 1
				index[k] = i
			} else if w.Rows[i].ApproxLatitude != r.ApproxLatitude || w.Rows[i].ApproxLongitude != r.ApproxLongitude {
				return nil, fmt.Errorf("%w: point %d, variable %s", ErrIncompatibleGrids, r.Point, t.Variable)
			}
			w.Rows[i].Values[ti] = r.Value
		}
	}
	sort.SliceStable(w.Rows, func(a, b int) bool {
		if w.Rows[a].Point != w.Rows[b].Point {
			return w.Rows[a].Point < w.Rows[b].Point
		}
		return w.Rows[a].Time.Before(w.Rows[b].Time)
	})
	return w, nil
}

// MarshalJSON encodes the table as columns plus positional rows, with null
// for missing values.
func (w *WideTable) MarshalJSON() ([]byte, error) {
	rows := make([][]any, len(w.Rows))
	for i, r := range w.Rows {
		row := []any{r.Time.Format(time.RFC3339), r.Longitude, r.ApproxLongitude, r.Latitude, r.ApproxLatitude}
		for _, v := range r.Values {
			if grid.Missing(v) {
				row = append(row, nil)
				continue
			}
			row = append(row, v)
		}
		rows[i] = row
	}
	return json.Marshal(struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}{w.Columns(), rows})
}

// WriteCSV writes the table with a header line. Missing values are written
// as empty fields.
func (w *WideTable) WriteCSV(out io.Writer) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(w.Columns()); err != nil {
		return err
	}
	rec := make([]string, 5+len(w.Variables))
	for _, r := range w.Rows {
		rec[0] = r.Time.Format(time.RFC3339)
		rec[1] = formatFloat(r.Longitude)
		rec[2] = formatFloat(r.ApproxLongitude)
		rec[3] = formatFloat(r.Latitude)
		rec[4] = formatFloat(r.ApproxLatitude)
		for i, v := range r.Values {
			rec[5+i] = ""
			if !grid.Missing(v) {
				rec[5+i] = formatFloat(v)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
