// Package observation answers point queries over several variables, each
// held by its own grid engine.
package observation

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rtm0/era5query/internal/grid"
	"github.com/rtm0/era5query/internal/metrics"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// ErrUnknownVariable is returned when no dataset serves a variable.
type ErrUnknownVariable struct {
	Variable string
}

func (e *ErrUnknownVariable) Error() string {
	return fmt.Sprintf("variable %q not available", e.Variable)
}

// Cache stores encoded query results.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service fans queries out to one engine per variable.
type Service struct {
	engines map[string]*grid.Engine
	order   []string
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches results for ttl. Results are deterministic for an
// unchanged dataset, so entries never need invalidating within a run.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service over engines. Variable names must be unique.
func NewService(engines []*grid.Engine, opts ...Option) (*Service, error) {
	s := &Service{engines: make(map[string]*grid.Engine, len(engines)), logger: slog.Default()}
	for _, e := range engines {
		if _, ok := s.engines[e.Variable()]; ok {
			return nil, fmt.Errorf("duplicate dataset for variable %q", e.Variable())
		}
		s.engines[e.Variable()] = e
		s.order = append(s.order, e.Variable())
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Variables returns the served variables in registration order.
func (s *Service) Variables() []string {
	return append([]string(nil), s.order...)
}

// Engine returns the engine serving variable.
func (s *Service) Engine(variable string) (*grid.Engine, error) {
	e, ok := s.engines[variable]
	if !ok {
		return nil, &ErrUnknownVariable{Variable: variable}
	}
	return e, nil
}

// Select runs q against every variable concurrently and returns one view per
// variable, in the order requested. An empty vars means all variables.
func (s *Service) Select(ctx context.Context, vars []string, q grid.Query) ([]*grid.GridView, error) {
	if len(vars) == 0 {
		vars = s.order
	}
	engines := make([]*grid.Engine, len(vars))
	for i, v := range vars {
		e, err := s.Engine(v)
		if err != nil {
			return nil, err
		}
		engines[i] = e
	}

	results := make([]*grid.GridView, len(vars))
	g, ctx := errgroup.WithContext(ctx)
	for i, e := range engines {
		g.Go(func() error {
			view, err := s.selectOne(ctx, e, q)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Variable(), err)
			}
			results[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Query is Select followed by flattening each view into a table.
func (s *Service) Query(ctx context.Context, vars []string, q grid.Query) ([]*grid.Table, error) {
	views, err := s.Select(ctx, vars, q)
	if err != nil {
		return nil, err
	}
	tables := make([]*grid.Table, len(views))
	for i, v := range views {
		tables[i] = v.Flatten()
	}
	return tables, nil
}

func (s *Service) selectOne(ctx context.Context, e *grid.Engine, q grid.Query) (*grid.GridView, error) {
	start := time.Now()
	outside, _ := e.Validator().OutsidePoints(q.Lats, q.Lons)
	metrics.ObserveOutside(e.Variable(), len(outside))

	key := CacheKey(e.Fingerprint(), q)
	if view, ok := s.fromCache(ctx, key); ok {
		// Errors are never cached, so a hit means these points were clamped.
		for _, i := range outside {
			s.logger.WarnContext(ctx, "GPS point not in the range, clamping to grid boundary",
				"variable", e.Variable(), "index", i, "lat", q.Lats[i], "lon", q.Lons[i])
		}
		metrics.ObserveQuery(e.Variable(), start, len(view.Points)*len(view.Times), nil)
		return view, nil
	}

	view, err := e.Select(ctx, q)
	rows := 0
	if view != nil {
		rows = len(view.Points) * len(view.Times)
	}
	metrics.ObserveQuery(e.Variable(), start, rows, err)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, view)
	return view, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (*grid.GridView, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
		}
		metrics.CacheHit(false)
		return nil, false
	}
	var view grid.GridView
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&view); err != nil {
		s.logger.WarnContext(ctx, "cache entry undecodable", "key", key, "error", err)
		metrics.CacheHit(false)
		return nil, false
	}
	metrics.CacheHit(true)
	return &view, true
}

func (s *Service) toCache(ctx context.Context, key string, view *grid.GridView) {
	if s.cache == nil {
		return
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(view); err != nil {
		s.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, buf.Bytes(), s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
}

// CacheKey returns a stable key for the results of q on the dataset with the
// given engine fingerprint. Floats are hashed by their bit patterns.
func CacheKey(fingerprint string, q grid.Query) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	var b [8]byte
	writeUint := func(v uint64) {
		binary.LittleEndian.PutUint64(b[:], v)
		h.Write(b[:])
	}
	writeUint(uint64(len(q.Lats)))
	for i := range q.Lats {
		writeUint(math.Float64bits(q.Lats[i]))
	}
	writeUint(uint64(len(q.Lons)))
	for i := range q.Lons {
		writeUint(math.Float64bits(q.Lons[i]))
	}
	for _, t := range []*time.Time{q.Start, q.End} {
		if t == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		writeUint(uint64(t.UnixNano()))
	}
	if q.StrictBounds {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return "era5query:" + hex.EncodeToString(h.Sum(nil))
}
