package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rtm0/era5query/internal/grid"
)

var (
	// Query metrics
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "era5query",
		Subsystem: "query",
		Name:      "requests_total",
		Help:      "Total queries processed, by variable and outcome",
	}, []string{"variable", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "era5query",
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Query latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
	}, []string{"variable"})

	rowsReturned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "era5query",
		Subsystem: "query",
		Name:      "rows_total",
		Help:      "Total result rows returned",
	}, []string{"variable"})

	pointsClamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "era5query",
		Subsystem: "query",
		Name:      "points_outside_coverage_total",
		Help:      "Query points outside spatial coverage, rejected or clamped",
	}, []string{"variable"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "era5query",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total result cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "era5query",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total result cache misses",
	})
)

// Outcome classifies a query error for the outcome label.
func Outcome(err error) string {
	var (
		lenErr    *grid.LengthMismatchError
		queryErr  *grid.InvalidQueryError
		windowErr *grid.InvalidWindowError
		rangeErr  *grid.OutOfRangeError
		dsErr     *grid.InvalidDatasetError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &lenErr), errors.As(err, &queryErr):
		return "invalid_query"
	case errors.As(err, &windowErr):
		return "invalid_window"
	case errors.As(err, &rangeErr):
		return "out_of_range"
	case errors.As(err, &dsErr):
		return "invalid_dataset"
	default:
		return "error"
	}
}

// ObserveQuery records one query of variable that started at start.
func ObserveQuery(variable string, start time.Time, rows int, err error) {
	queriesTotal.WithLabelValues(variable, Outcome(err)).Inc()
	queryDuration.WithLabelValues(variable).Observe(time.Since(start).Seconds())
	if err == nil {
		rowsReturned.WithLabelValues(variable).Add(float64(rows))
	}
}

// ObserveOutside records points outside the coverage of variable.
func ObserveOutside(variable string, n int) {
	if n > 0 {
		pointsClamped.WithLabelValues(variable).Add(float64(n))
	}
}

// CacheHit records a cache lookup.
func CacheHit(hit bool) {
	if hit {
		cacheHits.Inc()
		return
	}
	cacheMisses.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
