package api_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rtm0/era5query/internal/api"
	"github.com/rtm0/era5query/internal/grid"
	"github.com/rtm0/era5query/internal/observation"
)

var start = time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC)

// cube covers lat 44..45 and lon 2..3 at 0.5 degrees, 3 hourly steps.
func cube(name string, base float64) *grid.Cube {
	c := &grid.Cube{Name: name, Lat: []float64{44, 44.5, 45}, Lon: []float64{2, 2.5, 3}}
	for t := 0; t < 3; t++ {
		c.T = append(c.T, start.Add(time.Duration(t)*time.Hour))
		plane := make([][]float64, 3)
		for la := range plane {
			plane[la] = make([]float64, 3)
			for lo := range plane[la] {
				plane[la][lo] = base + float64(t*100+la*10+lo)
			}
		}
		c.Values = append(c.Values, plane)
	}
	return c
}

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var engines []*grid.Engine
	for _, c := range []*grid.Cube{cube("t2m", 0), cube("tp", 1000)} {
		e, err := grid.New(c, grid.WithLogger(logger))
		if err != nil {
			t.Fatal(err)
		}
		engines = append(engines, e)
	}
	svc, err := observation.NewService(engines, observation.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	api.NewHandler(svc, logger).RegisterRoutes(mux)
	return mux
}

func get(t *testing.T, mux http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	return w
}

func TestHealthHandler(t *testing.T) {
	w := get(t, newMux(t), "/health")

	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if body := w.Body.String(); body != "" {
		t.Errorf("expected empty body, got %q", body)
	}
}

func TestCoverageHandler(t *testing.T) {
	w := get(t, newMux(t), "/v1/coverage?variable=tp")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp []struct {
		Variable string      `json:"variable"`
		Bounds   grid.Bounds `json:"bounds"`
		TimeMax  time.Time   `json:"time_max"`
		Steps    int         `json:"steps"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || resp[0].Variable != "tp" || resp[0].Steps != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if b := resp[0].Bounds; b.LatMin != 44 || b.LatMax != 45 || b.LonMin != 2 || b.LonMax != 3 {
		t.Errorf("unexpected bounds %+v", b)
	}
	if !resp[0].TimeMax.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("unexpected time_max %v", resp[0].TimeMax)
	}
}

type tableResponse struct {
	Variable string   `json:"variable"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
}

func TestObservationsHandler_Table(t *testing.T) {
	w := get(t, newMux(t), "/v1/observations?variable=t2m&lat=44.6&lon=2.9&end=2020-09-01T01:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(api.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
	var resp tableResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Rows) != 2 || resp.Columns[5] != "t2m" {
		t.Fatalf("unexpected response %+v", resp)
	}
	// time, lon, approx lon, lat, approx lat, value
	row := resp.Rows[1]
	if row[0] != "2020-09-01T01:00:00Z" || row[2] != 3.0 || row[4] != 44.5 || row[5] != 112.0 {
		t.Errorf("unexpected row %v", row)
	}
}

func TestObservationsHandler_DateTimeWindow(t *testing.T) {
	w := get(t, newMux(t), "/v1/observations?variable=t2m&lat=44.6&lon=2.9&start=2020-09-01%2001:00:00&end=2020-09-01%2001:00:00")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp tableResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Rows) != 1 || resp.Rows[0][0] != "2020-09-01T01:00:00Z" || resp.Rows[0][5] != 112.0 {
		t.Errorf("unexpected rows %v", resp.Rows)
	}
}

func TestObservationsHandler_Wide(t *testing.T) {
	w := get(t, newMux(t), "/v1/observations?variable=t2m&variable=tp&lat=44&lon=2&start=2020-09-01T02:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Columns) != 7 || len(resp.Rows) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Rows[0][5] != 200.0 || resp.Rows[0][6] != 1200.0 {
		t.Errorf("unexpected row %v", resp.Rows[0])
	}
}

func TestObservationsHandler_Grid(t *testing.T) {
	w := get(t, newMux(t), "/v1/observations?variable=tp&lat=44,45&lon=2,3&format=grid")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp []struct {
		Variable string      `json:"variable"`
		Dims     []string    `json:"dims"`
		Values   [][]float64 `json:"values"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp) != 1 || len(resp[0].Values) != 3 || len(resp[0].Values[0]) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp[0].Values[2][1] != 1222 {
		t.Errorf("Values[2][1] = %v, want 1222", resp[0].Values[2][1])
	}
}

func TestObservationsHandler_CSV(t *testing.T) {
	w := get(t, newMux(t), "/v1/observations?variable=t2m&lat=44&lon=2&end=2020-09-01&format=csv")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	want := "time,longitude,approximate_longitude,latitude,approximate_latitude,t2m\n" +
		"2020-09-01T00:00:00Z,2,2,44,44,0\n"
	if got := w.Body.String(); got != want {
		t.Errorf("unexpected csv:\n%s\nwant:\n%s", got, want)
	}
}

func TestObservationsHandler_Errors(t *testing.T) {
	mux := newMux(t)
	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"length mismatch", "/v1/observations?lat=44,45&lon=2", http.StatusBadRequest, "bad_request"},
		{"no points", "/v1/observations?variable=t2m", http.StatusBadRequest, "bad_request"},
		{"bad lat", "/v1/observations?lat=north&lon=2", http.StatusBadRequest, "bad_request"},
		{"bad start", "/v1/observations?lat=44&lon=2&start=yesterday", http.StatusBadRequest, "bad_request"},
		{"reversed window", "/v1/observations?lat=44&lon=2&start=2020-09-01T02:00:00Z&end=2020-09-01T01:00:00Z", http.StatusBadRequest, "bad_request"},
		{"window outside history", "/v1/observations?lat=44&lon=2&end=2021-01-01T00:00:00Z", http.StatusBadRequest, "bad_request"},
		{"strict out of range", "/v1/observations?lat=50&lon=2&strict=true", http.StatusUnprocessableEntity, "out_of_range"},
		{"unknown variable", "/v1/observations?variable=u10&lat=44&lon=2", http.StatusNotFound, "not_found"},
		{"unknown format", "/v1/observations?lat=44&lon=2&format=xml", http.StatusBadRequest, "bad_request"},
		{"csv with many variables", "/v1/observations?lat=44&lon=2&format=csv", http.StatusBadRequest, "bad_request"},
		{"unknown coverage variable", "/v1/coverage?variable=u10", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, mux, tt.target)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			var apiErr api.APIError
			if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
				t.Fatal(err)
			}
			if apiErr.Code != tt.code || apiErr.RequestID == "" {
				t.Errorf("unexpected error body %+v", apiErr)
			}
		})
	}
}

func TestObservationsHandler_ClampsWithoutStrict(t *testing.T) {
	w := get(t, newMux(t), "/v1/observations?variable=t2m&lat=50&lon=2&end=2020-09-01T00:00:00Z")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `[["2020-09-01T00:00:00Z",2,2,50,45,20]]`) {
		t.Errorf("expected clamped row, got %s", w.Body.String())
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/coverage", nil)
	req.Header.Set(api.RequestIDHeader, "test-req-123")
	w := httptest.NewRecorder()
	newMux(t).ServeHTTP(w, req)
	if got := w.Header().Get(api.RequestIDHeader); got != "test-req-123" {
		t.Errorf("X-Request-ID = %q, want test-req-123", got)
	}
}
