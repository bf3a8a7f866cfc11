package grid

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"
)

// Row is one observation: the value of the variable at a timestamp for one
// query point. Latitude and Longitude are the caller's coordinates;
// the Approx fields are the grid cell that was read.
type Row struct {
	Point           int
	Time            time.Time
	Longitude       float64
	ApproxLongitude float64
	Latitude        float64
	ApproxLatitude  float64
	Value           float64
}

// Table is the flattened result of a query. Rows are grouped by query point
// in query order, then by ascending time.
type Table struct {
	Variable string
	Rows     []Row
}

// Columns returns the fixed column order of the table.
func (t *Table) Columns() []string {
	return []string{"time", "longitude", "approximate_longitude", "latitude", "approximate_latitude", t.Variable}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Missing reports whether v has no usable value: NaN or an infinity.
// Missing values are null in JSON and empty in CSV.
func Missing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func nullable(v float64) any {
	if Missing(v) {
		return nil
	}
	return v
}

// MarshalJSON encodes the table as columns plus positional rows. Missing
// values are encoded as null.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = []any{
			r.Time.Format(time.RFC3339),
			r.Longitude,
			r.ApproxLongitude,
			r.Latitude,
			r.ApproxLatitude,
			nullable(r.Value),
		}
	}
	return json.Marshal(struct {
		Variable string   `json:"variable"`
		Columns  []string `json:"columns"`
		Rows     [][]any  `json:"rows"`
	}{t.Variable, t.Columns(), rows})
}

// WriteCSV writes the table with a header line. Missing values are written
// as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return err
	}
	rec := make([]string, 6)
	for _, r := range t.Rows {
		rec[0] = r.Time.Format(time.RFC3339)
		rec[1] = formatFloat(r.Longitude)
		rec[2] = formatFloat(r.ApproxLongitude)
		rec[3] = formatFloat(r.Latitude)
		rec[4] = formatFloat(r.ApproxLatitude)
		rec[5] = ""
		if !Missing(r.Value) {
			rec[5] = formatFloat(r.Value)
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

// GridView is the native (time, point) selection of a query, before
// flattening. Values is indexed [time][point] and the point dimension is
// aligned with the query.
type GridView struct {
	Variable string
	Times    []time.Time
	// Points holds the caller's coordinates and Approx the grid cells read.
	Points []Point
	Approx []Point
	Values [][]float64
}

// MarshalJSON encodes missing values as null.
func (g *GridView) MarshalJSON() ([]byte, error) {
	times := make([]string, len(g.Times))
	for i, t := range g.Times {
		times[i] = t.Format(time.RFC3339)
	}
	values := make([][]any, len(g.Values))
	for i, step := range g.Values {
		values[i] = make([]any, len(step))
		for j, v := range step {
			values[i][j] = nullable(v)
		}
	}
	return json.Marshal(struct {
		Variable string   `json:"variable"`
		Dims     []string `json:"dims"`
		Times    []string `json:"time"`
		Points   []Point  `json:"points"`
		Approx   []Point  `json:"approximate_points"`
		Values   [][]any  `json:"values"`
	}{g.Variable, []string{"time", "z"}, times, g.Points, g.Approx, values})
}

// Flatten converts the view into a Table, grouped by point then time.
func (g *GridView) Flatten() *Table {
	t := &Table{Variable: g.Variable, Rows: make([]Row, 0, len(g.Points)*len(g.Times))}
	for p := range g.Points {
		for ti, ts := range g.Times {
			t.Rows = append(t.Rows, Row{
				Point:           p,
				Time:            ts,
				Longitude:       g.Points[p].Lon,
				ApproxLongitude: g.Approx[p].Lon,
				Latitude:        g.Points[p].Lat,
				ApproxLatitude:  g.Approx[p].Lat,
				Value:           g.Values[ti][p],
			})
		}
	}
	return t
}
