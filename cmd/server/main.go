// Command server starts the sessionlog HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"sessionlog/internal/api"
	"sessionlog/internal/config"
	"sessionlog/internal/observability/logging"
	"sessionlog/internal/observability/metrics"
	"sessionlog/internal/server"
	"sessionlog/internal/serverutil"
	"sessionlog/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, nil); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "sessionlog:", err)
		os.Exit(1)
	}
}

// run wires configuration, storage and the HTTP server, then blocks until ctx
// is cancelled or the listener fails. ready, when non-nil, is closed once the
// server accepts connections.
func run(ctx context.Context, args []string, logOutput io.Writer, ready chan<- struct{}) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	logger, syncLogs := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Writer: logOutput})
	defer func() { _ = syncLogs() }()

	recorder := metrics.New()
	metrics.SetDefault(recorder)

	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	repo, err := storage.Open(connectCtx, cfg.Storage.DriverConfig())
	cancelConnect()
	if err != nil {
		return fmt.Errorf("open %s datastore: %w", cfg.Storage.Driver, err)
	}
	logger.Info("datastore ready", "driver", cfg.Storage.Driver)
	repo = storage.Instrument(repo, recorder)
	recorder.SetDatastoreHealth(true)

	handler := api.NewHandler(repo, logging.WithComponent(logger, "api"))
	handler.Metrics = recorder

	srv, err := server.New(handler, server.Config{
		Addr: cfg.Addr,
		RateLimit: server.RateLimitConfig{
			GlobalRPS:             cfg.RateLimit.GlobalRPS,
			GlobalBurst:           cfg.RateLimit.GlobalBurst,
			ClientLimit:           cfg.RateLimit.ClientLimit,
			ClientWindow:          cfg.RateLimit.ClientWindow,
			TrustForwardedHeaders: cfg.RateLimit.TrustProxy,
			RedisAddr:             cfg.RateLimit.RedisAddr,
			RedisPassword:         cfg.RateLimit.RedisPassword,
			RedisTimeout:          cfg.RateLimit.RedisTimeout,
		},
		CORS:    server.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		closeRepository(logger, repo, cfg.ShutdownTimeout)
		return fmt.Errorf("initialise server: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serverutil.Run(groupCtx, serverutil.Config{
			Server:          srv.HTTPServer(),
			TLS:             serverutil.TLSConfig{CertFile: cfg.TLS.CertFile, KeyFile: cfg.TLS.KeyFile},
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger,
			Ready:           ready,
		})
	})
	group.Go(func() error {
		stopMonitor := startDatastoreMonitor(groupCtx, logging.WithComponent(logger, "datastore"), repo, recorder, cfg.HealthInterval)
		<-groupCtx.Done()
		stopMonitor()
		return nil
	})

	runErr := group.Wait()

	if err := srv.Close(); err != nil {
		logger.Warn("failed to close rate limiter", "error", err)
	}
	closeRepository(logger, repo, cfg.ShutdownTimeout)

	if runErr != nil {
		logger.Error("server error", "error", runErr)
		return runErr
	}
	logger.Info("server stopped")
	return nil
}

func closeRepository(logger *slog.Logger, repo storage.Repository, timeout time.Duration) {
	if timeout <= 0 {
		timeout = serverutil.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := repo.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
}
