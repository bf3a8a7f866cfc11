package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rtm0/era5query/internal/api"
	"github.com/rtm0/era5query/internal/cache"
	"github.com/rtm0/era5query/internal/config"
	"github.com/rtm0/era5query/internal/exitcode"
	"github.com/rtm0/era5query/internal/logging"
	"github.com/rtm0/era5query/internal/observation"
	"github.com/rtm0/era5query/internal/source"
	"github.com/rtm0/era5query/internal/storage"
)

var configPath = flag.String("config", "", "path to a config file. Default: config.yaml in . or ./configs")

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
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	datasets, err := source.Open(ctx, logger, source.Config{
		Files:    cfg.Data.Files,
		Keys:     cfg.Data.Keys,
		CacheDir: cfg.Data.CacheDir,
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

	opts := []observation.Option{observation.WithLogger(logger)}
	if cfg.Valkey.Addr != "" {
		c, err := cache.NewValkey(cfg.Valkey.Addr)
		if err != nil {
			logger.Error("failed to connect to valkey", "addr", cfg.Valkey.Addr, "error", err)
			return exitcode.StorageError
		}
		defer c.Close()

		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		err = c.Ping(pingCtx)
		cancelPing()
		if err != nil {
			logger.Error("valkey is not reachable", "addr", cfg.Valkey.Addr, "error", err)
			return exitcode.StorageError
		}
		opts = append(opts, observation.WithCache(c, cfg.Valkey.TTL))
	}
	svc, err := observation.NewService(datasets.Engines, opts...)
	if err != nil {
		logger.Error("failed to create service", "error", err)
		return exitcode.ConfigError
	}

	mux := http.NewServeMux()
	api.NewHandler(svc, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr, "variables", svc.Variables())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		logger.Error("server error", "error", err)
		return 1
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return 1
	}

	logger.Info("server stopped")
	return exitcode.Success
}
