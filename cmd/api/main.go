package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fdg312/cdr-hub/internal/blob"
	"github.com/fdg312/cdr-hub/internal/cdr"
	"github.com/fdg312/cdr-hub/internal/config"
	"github.com/fdg312/cdr-hub/internal/httpserver"
	"github.com/fdg312/cdr-hub/internal/logging"
	"github.com/fdg312/cdr-hub/internal/webex"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg, "cdr-api")
	if err != nil {
		log.Fatalf("FATAL logger: %v", err)
	}
	defer logger.Sync()

	printStartupBanner(cfg, logger)
	validateProductionConfig(cfg, logger)

	store, mode, err := blob.NewBlobStore(cfg.Blob, logging.StdLogger(logger))
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cdr.ConfigOptions(cfg.Fetch),
		cdr.WithLogger(logger),
		cdr.WithMetrics(cdr.NewMetrics(reg)),
		cdr.WithStorageMode(mode),
	)
	fetcher := cdr.NewFetcher(webex.NewTransport(cfg.Webex), store, opts...)

	server := httpserver.New(cfg, fetcher, reg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// printStartupBanner logs a one-time summary of the resolved configuration.
// Secrets are only reported as "set" / "not set".
func printStartupBanner(cfg *config.Config, logger *zap.Logger) {
	l := logging.StdLogger(logger)
	l.Println("========== CDR Hub API ==========")
	l.Printf("  env              = %s", cfg.Env)
	l.Printf("  port             = %d", cfg.Port)
	l.Printf("  cors_origins     = %s", nonEmptyOrDash(strings.Join(cfg.CORSAllowedOrigins, ",")))
	l.Printf("  rate_limit_rps   = %d (burst=%d)", cfg.RateLimitRPS, cfg.RateLimitBurst)

	// ---- Webex ----
	l.Println("---- webex ----")
	l.Printf("  webex_mode       = %s", cfg.Webex.Mode)
	l.Printf("  api_base_url     = %s", cfg.Webex.APIBaseURL)
	l.Printf("  timeouts         = control=%ds download=%ds", cfg.Webex.ControlTimeoutSeconds, cfg.Webex.DownloadTimeoutSeconds)

	// ---- Fetch ----
	l.Println("---- fetch ----")
	l.Printf("  poll             = %s every %ds, timeout %ds", cfg.Fetch.PollStrategy, cfg.Fetch.PollIntervalSeconds, cfg.Fetch.PollTimeoutSeconds)
	l.Printf("  days             = default %d, max %d", cfg.Fetch.DefaultDays, cfg.Fetch.MaxDays)

	// ---- Blob / S3 ----
	l.Println("---- blob ----")
	l.Printf("  blob_mode        = %s", cfg.Blob.Mode)
	l.Printf("  output_dir       = %s", cfg.Blob.OutputDir)
	if cfg.Blob.Mode != config.BlobModeLocal {
		l.Printf("  s3: %s", cfg.Blob.S3.DiagnosticsSummary())
	}

	l.Println("=================================")
}

// validateProductionConfig performs fatal checks that only matter in non-local envs.
func validateProductionConfig(cfg *config.Config, logger *zap.Logger) {
	isProd := cfg.Env == "production" || cfg.Env == "staging"

	if cfg.Blob.Mode == config.BlobModeS3 {
		if missing := cfg.Blob.S3.MissingRequired(); len(missing) > 0 {
			logger.Fatal("BLOB_MODE is 's3' but S3 config is incomplete", zap.Strings("missing", missing))
		}
	}

	if isProd && cfg.Webex.Mode == config.WebexModeMock {
		logger.Fatal("WEBEX_MODE=mock is not allowed", zap.String("env", cfg.Env))
	}
}

func nonEmptyOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
