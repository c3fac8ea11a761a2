package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/varserve/seed-fetcher/internal/api"
	"github.com/varserve/seed-fetcher/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the seed fetch service",
	Long: `Start the seed fetch service. The one-time seed fetch runs in the
background off the serving path; the HTTP API exposes the attempt state,
installed-seed metadata, and a fetch trigger that no-ops once an attempt has
been recorded.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfigOptional(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.Server.Address
	}

	slog.Info("Starting seed fetch service",
		"address", address,
		"endpoint", cfg.Seed.Endpoint,
		"data_dir", cfg.Storage.DataDir)

	// One instance per data directory; the attempt flag must have a single
	// writer.
	lock, err := acquireInstanceLock(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Unlock()
	}()

	registry := prometheus.NewRegistry()
	meterProvider, err := telemetry.NewMeterProvider(registry, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var metrics *telemetry.FetchMetrics
	if meterProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := meterProvider.Shutdown(shutdownCtx); err != nil {
				slog.Error("Failed to shut down meter provider", "error", err)
			}
		}()

		metrics, err = telemetry.NewFetchMetrics(meterProvider)
		if err != nil {
			return fmt.Errorf("failed to create fetch metrics: %w", err)
		}
	}

	comps := buildComponents(cfg, metrics)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
		),
	}
	if cfg.Telemetry.Enabled {
		serverOpts = append(serverOpts, api.WithMetricsGatherer(registry))
	}
	router := api.NewServer(comps.svc, serverOpts...)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// The one-time fetch blocks for up to the connect+read timeouts, so it
	// runs off the serving path.
	group.Go(func() error {
		summary := comps.fetcher.FetchSeedOnce(groupCtx, cfg.Seed.RestrictMode)
		if !summary.Performed {
			slog.Info("Seed fetch already attempted, skipping")
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
