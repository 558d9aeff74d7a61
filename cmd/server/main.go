package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/meetsmatch/ridemap/internal/cache"
	"github.com/meetsmatch/ridemap/internal/config"
	"github.com/meetsmatch/ridemap/internal/geocoding"
	"github.com/meetsmatch/ridemap/internal/httpserver"
	"github.com/meetsmatch/ridemap/internal/monitoring"
	"github.com/meetsmatch/ridemap/internal/routing"
	"github.com/meetsmatch/ridemap/internal/session"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

const (
	serviceName = "ridemap"
	version     = "1.0.0"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Location picker and ride map session server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("addr", "", "listen address, overrides HTTP_ADDR")
	serve := newServeCommand()
	rootCmd.AddCommand(serve, newCheckConfigCommand(), newVersionCommand())
	rootCmd.RunE = serve.RunE
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTPAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := telemetry.InitGlobalLogger(cfg.Logging()); err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			if !cfg.IsDevelopment() {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				telemetry.LogFromContext(ctx).WithError(err).Error("Server exited with error")
				return err
			}
			telemetry.LogFromContext(ctx).Info("Server exited")
			return nil
		},
	}
}

func newCheckConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the environment configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (env=%s addr=%s snapshots=%t)\n",
				cfg.Environment, cfg.HTTPAddr, cfg.RedisURL != "")
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, version)
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := telemetry.LogFromContext(ctx)

	shutdownOTel, err := telemetry.InitializeOpenTelemetry(ctx, cfg.Telemetry(serviceName, version))
	if err != nil {
		return err
	}
	defer shutdownOTel()

	upstream, err := telemetry.NewUpstreamMetrics()
	if err != nil {
		return err
	}

	deps := session.Dependencies{
		Reverser: geocoding.NewService(cfg.Geocoding(), upstream),
		Router:   routing.NewClient(cfg.Routing(), upstream),
		Metrics:  upstream,
	}

	health := monitoring.NewHealthChecker(serviceName, version)

	// Store stays a nil interface when snapshots are disabled.
	var store session.Store
	if cfg.RedisURL != "" {
		snapshots, err := cache.NewSnapshotStore(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return err
		}
		defer snapshots.Close()
		store = snapshots
		health.RegisterRedisCheck("redis", snapshots)
		logger.Info("Session snapshots enabled")
	}

	manager := session.NewManager(context.Background(), deps, store, cfg.SessionTTL)
	defer manager.Shutdown()
	manager.StartCleanupRoutine(cfg.CleanupInterval)
	health.RegisterCustomCheck("sessions", func(context.Context) monitoring.ComponentHealth {
		return monitoring.ComponentHealth{
			Status:      monitoring.HealthStatusHealthy,
			LastChecked: time.Now(),
			Details:     map[string]int{"active": manager.Count()},
		}
	})

	metrics, err := monitoring.NewHTTPMetrics(nil, manager.Count)
	if err != nil {
		return err
	}

	serverCfg := httpserver.DefaultConfig()
	serverCfg.ServiceName = serviceName
	serverCfg.Metrics = metrics
	serverCfg.Health = health
	server := httpserver.New(manager, serverCfg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				server.PruneLimiters(time.Hour)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
