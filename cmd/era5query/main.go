package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rtm0/era5query/internal/config"
	"github.com/rtm0/era5query/internal/exitcode"
	"github.com/rtm0/era5query/internal/grid"
	"github.com/rtm0/era5query/internal/logging"
	"github.com/rtm0/era5query/internal/observation"
	"github.com/rtm0/era5query/internal/source"
	"github.com/rtm0/era5query/internal/storage"
	"github.com/rtm0/era5query/internal/vm"
)

var (
	configPath    = flag.String("config", "", "path to a config file. Default: config.yaml in . or ./configs")
	files         = flag.String("file", "", "comma-separated paths to ERA5 files in NetCDF format. Overrides data.files")
	keys          = flag.String("key", "", "comma-separated object keys of ERA5 files in MinIO. Overrides data.keys")
	datasetVars   = flag.String("datasetVariable", "", "comma-separated CDS variables, e.g. 2m_temperature. Used with -start and -end to build object keys when -key is empty")
	keyPrefix     = flag.String("keyPrefix", "era5", "object key prefix used with -datasetVariable")
	ncVar         = flag.String("ncVar", "", "data variable to read from each file. Default: the first non-axis variable")
	variables     = flag.String("variable", "", "comma-separated variables to query. Default: all opened variables")
	lats          = flag.String("lat", "", "comma-separated latitudes of the query points")
	lons          = flag.String("lon", "", "comma-separated longitudes of the query points")
	start         = flag.String("start", "", "start of the time window, RFC 3339, YYYY-MM-DD HH:MM:SS or YYYY-MM-DD (UTC). Default: first timestamp")
	end           = flag.String("end", "", "end of the time window, RFC 3339, YYYY-MM-DD HH:MM:SS or YYYY-MM-DD (UTC). Default: last timestamp")
	strict        = flag.Bool("strict", false, "reject points outside the grid instead of clamping them")
	export        = flag.Bool("export", false, "insert results into Victoria Metrics instead of printing CSV")
	concurrency   = flag.Int("concurrency", 0, "number of concurrent requests to Victoria Metrics. Overrides vm.concurrency")
	recsPerInsert = flag.Int("recsPerInsert", 0, "number of records sent to VM in one batch. Overrides vm.batch_size")
	vmInsertURL   = flag.String("vmInsertUrl", "", "Victoria Metrics insert API URL, /write (InfluxDB line protocol) or /api/v1/import/csv. Overrides vm.insert_url")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitcode.ConfigError
	}
	// stdout carries the CSV output
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	q, err := parseQuery(*lats, *lons, *start, *end, *strict)
	if err != nil {
		logger.Error("invalid query flags", "error", err)
		fmt.Fprintf(os.Stderr, "Usage: %v\n", err)
		return exitcode.ConfigError
	}
	if err := applyFlags(cfg, q); err != nil {
		logger.Error("invalid flags", "error", err)
		fmt.Fprintf(os.Stderr, "Usage: %v\n", err)
		return exitcode.ConfigError
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration after flag overrides", "error", err)
		return exitcode.ConfigError
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	datasets, err := source.Open(ctx, logger, source.Config{
		Files:    cfg.Data.Files,
		Keys:     cfg.Data.Keys,
		CacheDir: cfg.Data.CacheDir,
		Variable: *ncVar,
		MinIO: storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		},
	})
	if err != nil {
		logger.Error("failed to open datasets", "error", err)
		return source.ExitCode(err)
	}
	defer datasets.Close()

	svc, err := observation.NewService(datasets.Engines, observation.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create service", "error", err)
		return exitcode.ConfigError
	}

	tables, err := svc.Query(ctx, splitList(*variables), q)
	if err != nil {
		logger.Error("query failed", "error", err)
		return queryExitCode(err)
	}

	if *export {
		if err := exportTables(ctx, logger, cfg.VM, tables); err != nil {
			logger.Error("export failed", "error", err)
			return exitcode.ExportError
		}
		return exitcode.Success
	}
	if err := writeCSV(os.Stdout, tables); err != nil {
		logger.Error("failed to write csv", "error", err)
		return exitcode.DataError
	}
	return exitcode.Success
}

// applyFlags lets explicitly set flags override the loaded configuration.
func applyFlags(cfg *config.Config, q grid.Query) error {
	if *files != "" {
		cfg.Data.Files = splitList(*files)
	}
	switch {
	case *keys != "":
		cfg.Data.Keys = splitList(*keys)
	case *datasetVars != "":
		k, err := datasetKeys(*keyPrefix, splitList(*datasetVars), q)
		if err != nil {
			return err
		}
		cfg.Data.Keys = k
	}
	if *concurrency > 0 {
		cfg.VM.Concurrency = *concurrency
	}
	if *recsPerInsert > 0 {
		cfg.VM.BatchSize = *recsPerInsert
	}
	if *vmInsertURL != "" {
		cfg.VM.InsertURL = *vmInsertURL
	}
	return nil
}

// datasetKeys builds the bucket key of the file holding each CDS variable
// over the query window.
func datasetKeys(prefix string, vars []string, q grid.Query) ([]string, error) {
	if q.Start == nil || q.End == nil {
		return nil, errors.New("-datasetVariable requires both -start and -end")
	}
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = storage.DatasetKey{Prefix: prefix, Variable: v, Start: *q.Start, End: *q.End}.Key()
	}
	return out, nil
}

func exportTables(ctx context.Context, logger *slog.Logger, cfg config.VMConfig, tables []*grid.Table) error {
	vmCli, err := vm.NewClient(logger, cfg.InsertURL, cfg.Concurrency, cfg.MetricPrefix)
	if err != nil {
		return fmt.Errorf("create VM client: %w", err)
	}
	var inserted, total int
	for _, t := range tables {
		total += t.Len()
	}
	begin := time.Now()
	for _, t := range tables {
		n, err := vmCli.Export(ctx, t, cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("export %s: %w", t.Variable, err)
		}
		inserted += t.Len()
		logger.Info("progress",
			"variable", t.Variable,
			"sent", n,
			"inserted", fmt.Sprintf("%.2f%%", 100*float64(inserted)/float64(max(total, 1))),
			"in", time.Since(begin).Round(time.Second))
	}
	return nil
}

// writeCSV prints a single table as is and joins several into one wide table.
func writeCSV(w io.Writer, tables []*grid.Table) error {
	if len(tables) == 1 {
		return tables[0].WriteCSV(w)
	}
	wide, err := observation.Merge(tables)
	if err != nil {
		return err
	}
	return wide.WriteCSV(w)
}

func queryExitCode(err error) int {
	var (
		lenErr     *grid.LengthMismatchError
		queryErr   *grid.InvalidQueryError
		windowErr  *grid.InvalidWindowError
		rangeErr   *grid.OutOfRangeError
		unknownErr *observation.ErrUnknownVariable
	)
	switch {
	case errors.As(err, &lenErr), errors.As(err, &queryErr), errors.As(err, &windowErr),
		errors.As(err, &rangeErr), errors.As(err, &unknownErr):
		return exitcode.QueryError
	default:
		return exitcode.DataError
	}
}

func parseQuery(lats, lons, start, end string, strict bool) (grid.Query, error) {
	q := grid.Query{StrictBounds: strict}
	var err error
	if q.Lats, err = parseFloats(lats); err != nil {
		return q, fmt.Errorf("lat: %w", err)
	}
	if q.Lons, err = parseFloats(lons); err != nil {
		return q, fmt.Errorf("lon: %w", err)
	}
	if q.Start, err = grid.ParseTime(start); err != nil {
		return q, fmt.Errorf("start: %w", err)
	}
	if q.End, err = grid.ParseTime(end); err != nil {
		return q, fmt.Errorf("end: %w", err)
	}
	return q, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

