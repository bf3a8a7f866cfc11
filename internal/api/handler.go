// Package api serves point queries over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rtm0/era5query/internal/grid"
	"github.com/rtm0/era5query/internal/metrics"
	"github.com/rtm0/era5query/internal/observation"
)

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	svc    *observation.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *observation.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes attaches all routes to the provided mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /v1/coverage", withRequestID(h.logger, http.HandlerFunc(h.handleCoverage)))
	mux.Handle("GET /v1/observations", withRequestID(h.logger, http.HandlerFunc(h.handleObservations)))
}

// handleHealth returns 204 No Content for liveness checks.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type coverageResponse struct {
	Variable string      `json:"variable"`
	Bounds   grid.Bounds `json:"bounds"`
	TimeMin  time.Time   `json:"time_min"`
	TimeMax  time.Time   `json:"time_max"`
	Steps    int         `json:"steps"`
}

// GET /v1/coverage?variable=t2m
func (h *Handler) handleCoverage(w http.ResponseWriter, r *http.Request) {
	vars := variables(r)
	if len(vars) == 0 {
		vars = h.svc.Variables()
	}
	resp := make([]coverageResponse, 0, len(vars))
	for _, v := range vars {
		e, err := h.svc.Engine(v)
		if err != nil {
			writeQueryError(w, r, err)
			return
		}
		cov := e.Coverage()
		tmin, tmax := cov.TemporalBounds()
		resp = append(resp, coverageResponse{
			Variable: v,
			Bounds:   cov.Bounds(),
			TimeMin:  tmin,
			TimeMax:  tmax,
			Steps:    len(cov.Times()),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /v1/observations?variable=t2m&lat=48.641,46.24&lon=2.35,6.1&start=..&end=..&strict=true&format=table
func (h *Handler) handleObservations(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	vars := variables(r)

	switch format := r.URL.Query().Get("format"); format {
	case "grid":
		views, err := h.svc.Select(r.Context(), vars, q)
		if err != nil {
			writeQueryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case "", "table", "csv":
		tables, err := h.svc.Query(r.Context(), vars, q)
		if err != nil {
			writeQueryError(w, r, err)
			return
		}
		if format == "csv" {
			h.writeCSV(w, r, tables)
			return
		}
		if len(tables) == 1 {
			writeJSON(w, http.StatusOK, tables[0])
			return
		}
		wide, err := observation.Merge(tables)
		if err != nil {
			writeQueryError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, wide)
	default:
		writeError(w, r, http.StatusBadRequest, "bad_request", "format must be table, grid or csv")
	}
}

func (h *Handler) writeCSV(w http.ResponseWriter, r *http.Request, tables []*grid.Table) {
	if len(tables) != 1 {
		writeError(w, r, http.StatusBadRequest, "bad_request", "csv output takes exactly one variable")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := tables[0].WriteCSV(w); err != nil {
		LoggerFromCtx(r.Context()).Error("failed to write csv", "error", err)
	}
}

// variables accepts both repeated and comma-separated variable parameters.
func variables(r *http.Request) []string {
	var vars []string
	for _, v := range r.URL.Query()["variable"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				vars = append(vars, name)
			}
		}
	}
	return vars
}

type paramError struct {
	name string
	err  error
}

func (e *paramError) Error() string {
	return "invalid " + e.name + ": " + e.err.Error()
}

func (e *paramError) Unwrap() error { return e.err }

func parseQuery(r *http.Request) (grid.Query, error) {
	params := r.URL.Query()
	var q grid.Query
	var err error
	if q.Lats, err = parseFloats(params.Get("lat")); err != nil {
		return q, &paramError{"lat", err}
	}
	if q.Lons, err = parseFloats(params.Get("lon")); err != nil {
		return q, &paramError{"lon", err}
	}
	if q.Start, err = grid.ParseTime(params.Get("start")); err != nil {
		return q, &paramError{"start", err}
	}
	if q.End, err = grid.ParseTime(params.Get("end")); err != nil {
		return q, &paramError{"end", err}
	}
	if s := params.Get("strict"); s != "" {
		if q.StrictBounds, err = strconv.ParseBool(s); err != nil {
			return q, &paramError{"strict", err}
		}
	}
	return q, nil
}

func parseFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
