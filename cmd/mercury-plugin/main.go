// Command mercury-plugin serves the Mercury webhook endpoint, the banking
// tools and the subscription API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mihaimyh/gomercury/internal/config"
	"github.com/mihaimyh/gomercury/pkg/mercury"
	zerologadapter "github.com/mihaimyh/gomercury/pkg/mercury/logger/zerolog"
	prommetrics "github.com/mihaimyh/gomercury/pkg/mercury/metrics/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mercury-plugin: %v\n", err)
		os.Exit(2)
	}

	zl := newZerolog(cfg.Log)
	if err := run(cfg, &zl); err != nil {
		zl.Error().Err(err).Msg("mercury-plugin stopped")
		os.Exit(1)
	}
}

func newZerolog(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "mercury-plugin").Logger()
}

func run(cfg *config.Config, zl *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerologadapter.NewLogger(zl)

	var (
		metrics        mercury.Metrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = prommetrics.NewMetrics(reg, cfg.MetricsNamespace)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	app, err := build(ctx, cfg, logger, metrics, metricsHandler)
	if err != nil {
		return err
	}
	defer app.close(logger)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           app.plugin.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			mercury.Field{Key: "address", Value: cfg.Address},
			mercury.Field{Key: "invoker", Value: cfg.Invoker.Backend},
			mercury.Field{Key: "store", Value: cfg.Store.Backend},
			mercury.Field{Key: "mode", Value: cfg.Webhook.Mode},
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if app.cleanup != nil {
		g.Go(func() error {
			app.cleanup(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
