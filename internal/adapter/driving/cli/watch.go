package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/repowatch/internal/adapter/driving/http"
	"github.com/ericfisherdev/repowatch/internal/application"
)

const shutdownTimeout = 10 * time.Second

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the configured concerns on an interval and serve health and metrics",
		Long: `Run every configured concern immediately and then once per interval until
interrupted. A small HTTP server exposes /healthz, /metrics, and
POST /api/v1/refresh for an on-demand cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.Config
			if cmd.Flags().Changed("interval") {
				if interval <= 0 {
					return fmt.Errorf("interval must be positive, got %s", interval)
				}
				cfg.WatchInterval = interval
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			return runWatch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "override the configured watch interval")
	cmd.Flags().StringVar(&listen, "listen", "", "override the configured listen address")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *RootOptions) error {
	cfg := opts.Config
	logger := opts.Logger

	repos, err := cfg.Repos()
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		return errors.New("no repositories configured; add one with: repowatch add <url> [name]")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eng, err := opts.newEngine(ctx, cmd.OutOrStdout(), reg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			logger.Error("error closing state store", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc := application.NewWatchService(eng.orchestrator, repos, cfg.Concerns(), cfg.WatchInterval, logger)

	handler := httphandler.NewHandler(svc, reg, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Refresh runs a full cycle before answering.
		WriteTimeout: cfg.BatchTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("watch server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("watch server: %w", err)
			cancel()
		}
	}()

	logger.Info("watching repositories",
		"repositories", len(repos),
		"concerns", cfg.Concerns(),
		"interval", cfg.WatchInterval,
	)

	// Blocks until interrupted or the server fails.
	svc.Start(ctx)

	logger.Info("shutting down watch server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("watch server shutdown error", "error", err)
	}

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}
