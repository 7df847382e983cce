package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/curasupply/curaledger/internal/api"
	"github.com/curasupply/curaledger/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the back office HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")

	return cmd
}

func runServe(ctx context.Context, opts *options, addr string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	var collector metrics.Collector = metrics.NoOpCollector{}
	if cfg.Metrics.Enabled {
		pc := metrics.NewPrometheusCollector(cfg.Metrics.Namespace)
		if err := pc.Register(registry); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = pc
	}

	a, err := opts.openApp(ctx, collector)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger.Named("serve")

	handler, err := api.NewServer(a.svc, api.WithRegistry(registry), api.WithLogger(a.logger))
	if err != nil {
		return err
	}

	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", addr),
			zap.String("store", a.cfg.Store.Driver),
			zap.Bool("metrics", a.cfg.Metrics.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
