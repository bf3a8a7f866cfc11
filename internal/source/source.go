// Package source opens the datasets a process serves, from local files or
// object storage, and builds one grid engine per file.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rtm0/era5query/internal/era5"
	"github.com/rtm0/era5query/internal/exitcode"
	"github.com/rtm0/era5query/internal/grid"
	"github.com/rtm0/era5query/internal/storage"
)

var (
	// ErrNoDatasets is returned when neither files nor keys are configured.
	ErrNoDatasets = errors.New("no datasets configured")
	// ErrFetch marks failures to download a dataset from object storage.
	ErrFetch = errors.New("fetch dataset")
	// ErrOpen marks failures to open or validate a dataset file.
	ErrOpen = errors.New("open dataset")
)

// Fetcher downloads an object into dir and returns the local path.
type Fetcher interface {
	Fetch(ctx context.Context, key, dir string) (string, error)
}

// Config lists the datasets to open.
type Config struct {
	Files []string
	// Keys are fetched from MinIO into CacheDir before opening.
	Keys     []string
	CacheDir string
	MinIO    storage.MinIOConfig
	// Variable overrides data variable detection for every file.
	Variable string
	// Fetcher replaces the MinIO client, mainly for tests.
	Fetcher Fetcher
}

// Datasets holds the opened files and their engines.
type Datasets struct {
	Engines []*grid.Engine
	files   []*era5.Dataset
}

// Close closes every opened file.
func (d *Datasets) Close() {
	for _, f := range d.files {
		f.Close()
	}
}

// Open fetches and opens every configured dataset. On error, files opened so
// far are closed.
func Open(ctx context.Context, logger *slog.Logger, cfg Config) (*Datasets, error) {
	if len(cfg.Files) == 0 && len(cfg.Keys) == 0 {
		return nil, ErrNoDatasets
	}

	paths := append([]string(nil), cfg.Files...)
	if len(cfg.Keys) > 0 {
		fetched, err := fetchAll(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, fetched...)
	}

	ds := &Datasets{}
	for _, path := range paths {
		f, err := era5.Open(path, era5.Options{Variable: cfg.Variable})
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		ds.files = append(ds.files, f)
		logger.Info("ERA5 summary", f.Summary()...)

		e, err := grid.New(f, grid.WithLogger(logger.With("variable", f.Variable())))
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
		}
		ds.Engines = append(ds.Engines, e)
	}
	return ds, nil
}

func fetchAll(ctx context.Context, logger *slog.Logger, cfg Config) ([]string, error) {
	fetcher := cfg.Fetcher
	if fetcher == nil {
		m, err := storage.NewMinIOClient(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		fetcher = m
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	paths := make([]string, 0, len(cfg.Keys))
	for _, key := range cfg.Keys {
		path, err := fetcher.Fetch(ctx, key, cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		logger.Info("dataset fetched", "key", key, "path", path)
		paths = append(paths, path)
	}
	return paths, nil
}

// ExitCode maps an Open error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcode.Success
	case errors.Is(err, ErrFetch):
		return exitcode.StorageError
	case errors.Is(err, ErrOpen):
		return exitcode.DataError
	default:
		return exitcode.ConfigError
	}
}
