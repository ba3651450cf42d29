package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bistro-cms/menuimport/internal/handlers"
	"github.com/bistro-cms/menuimport/internal/importer"
	"github.com/bistro-cms/menuimport/internal/metrics"
	"github.com/bistro-cms/menuimport/internal/scheduler"
	"github.com/bistro-cms/menuimport/internal/wizard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the import wizard API",
		Long: `Starts the HTTP API behind the menu import wizard.

Operators create a session, upload menu files, pick a category and options,
let the server render and extract the items, review them and commit. Metrics
are served on /metrics and the specials scheduler runs in the background.`,
		Example: `  # Start on the configured address (default :8888)
  menuimport serve

  # Start on a custom address with a Postgres store
  MENU_STORE_DRIVER=postgres MENU_STORE_DSN=postgres://localhost/menus menuimport serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides server.addr)")

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	extractor, err := a.extractor("", "", m)
	if err != nil {
		return err
	}
	committer := importer.New(st, importer.WithLogger(logger), importer.WithMetrics(m))
	pipeline := wizard.NewPipeline(a.rasterizer(), extractor, committer, m, logger)

	handler := handlers.New(st, pipeline, logger,
		handlers.WithProcessTimeout(a.cfg.Server.ProcessTimeout),
	)

	mux := handler.Routes()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	if a.cfg.Scheduler.Enabled {
		sched := scheduler.New(st, a.cfg.Scheduler.Spec, m, logger)
		if err := sched.Start(); err != nil {
			return err
		}
		defer func() { <-sched.Stop().Done() }()
	}

	go a.expireSessions(ctx, handler)

	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Menu import API available", "addr", server.Addr, "provider", extractor.Provider(), "model", extractor.Model(), "store", a.cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation (Ctrl+C) or server error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "err", err)
			return err
		}
		handler.Shutdown()
		logger.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}

// expireSessions drops idle sessions until ctx ends
func (a *app) expireSessions(ctx context.Context, h *handlers.Handler) {
	ttl := a.cfg.Server.SessionTTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(min(ttl/4, 5*time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Sessions().Expire(ttl); n > 0 {
				a.logger.Info("Expired idle sessions", slog.Int("count", n))
			}
		}
	}
}
