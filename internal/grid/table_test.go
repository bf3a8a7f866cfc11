package grid

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func sampleTable() *Table {
	return &Table{
		Variable: "t2m",
		Rows: []Row{
			{Time: testStart, Longitude: -2, ApproxLongitude: -2, Latitude: 48.641, ApproxLatitude: 48.6, Value: 285.5},
			{Time: testStart, Longitude: -1, ApproxLongitude: -1, Latitude: 46.24, ApproxLatitude: 46.2, Value: math.NaN()},
		},
	}
}

func TestTable_WriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleTable().WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"time,longitude,approximate_longitude,latitude,approximate_latitude,t2m",
		"2020-09-01T00:00:00Z,-2,-2,48.641,48.6,285.5",
		"2020-09-01T00:00:00Z,-1,-1,46.24,46.2,",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("WriteCSV() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestTable_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(sampleTable())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Variable string   `json:"variable"`
		Columns  []string `json:"columns"`
		Rows     [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Variable != "t2m" || len(got.Columns) != 6 || got.Columns[5] != "t2m" {
		t.Errorf("unexpected header %+v", got)
	}
	if got.Rows[0][5] != 285.5 {
		t.Errorf("expected value 285.5, got %v", got.Rows[0][5])
	}
	if got.Rows[1][5] != nil {
		t.Errorf("expected missing value encoded as null, got %v", got.Rows[1][5])
	}
}

func TestTable_InfinityIsMissingInBothEncodings(t *testing.T) {
	tbl := sampleTable()
	tbl.Rows[0].Value = math.Inf(1)
	tbl.Rows[1].Value = math.Inf(-1)

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for _, line := range lines[1:] {
		if !strings.HasSuffix(line, ",") {
			t.Errorf("expected empty value field, got %q", line)
		}
	}

	b, err := json.Marshal(tbl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Rows [][]any `json:"rows"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	for i, row := range got.Rows {
		if row[5] != nil {
			t.Errorf("row %d: expected null, got %v", i, row[5])
		}
	}
}

func TestMissing(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if !Missing(v) {
			t.Errorf("Missing(%v) = false", v)
		}
	}
	for _, v := range []float64{0, -273.15, math.MaxFloat64} {
		if Missing(v) {
			t.Errorf("Missing(%v) = true", v)
		}
	}
}

func TestGridView_MarshalJSON(t *testing.T) {
	g := &GridView{
		Variable: "t2m",
		Times:    []time.Time{testStart},
		Points:   []Point{{Lat: 48.641, Lon: -2}, {Lat: 46.24, Lon: -1}},
		Approx:   []Point{{Lat: 48.6, Lon: -2}, {Lat: 46.2, Lon: -1}},
		Values:   [][]float64{{285.5, math.NaN()}},
	}
	b, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got struct {
		Dims   []string `json:"dims"`
		Times  []string `json:"time"`
		Approx []Point  `json:"approximate_points"`
		Values [][]any  `json:"values"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Dims) != 2 || got.Dims[1] != "z" {
		t.Errorf("unexpected dims %v", got.Dims)
	}
	if got.Times[0] != "2020-09-01T00:00:00Z" {
		t.Errorf("unexpected time %v", got.Times[0])
	}
	if got.Approx[0].Lat != 48.6 {
		t.Errorf("unexpected approximate point %+v", got.Approx[0])
	}
	if got.Values[0][0] != 285.5 || got.Values[0][1] != nil {
		t.Errorf("unexpected values %v", got.Values)
	}
}
