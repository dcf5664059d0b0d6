// Package main provides the entry point for the qrgate server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/idqr/qrgate/internal/admin"
	"github.com/idqr/qrgate/internal/clock"
	"github.com/idqr/qrgate/internal/config"
	"github.com/idqr/qrgate/internal/gate"
	"github.com/idqr/qrgate/internal/identity"
	"github.com/idqr/qrgate/internal/metrics"
	"github.com/idqr/qrgate/internal/middleware"
	"github.com/idqr/qrgate/internal/qr"
	"github.com/idqr/qrgate/internal/scan"
	"github.com/idqr/qrgate/internal/session"
	"github.com/idqr/qrgate/internal/storage"
	"github.com/idqr/qrgate/internal/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	clk := clock.System()

	idm := identity.NewManager(store, clk, logger)
	if err := idm.Bootstrap(context.Background(), cfg.AdminCode); err != nil {
		return err
	}

	registry := token.NewRegistry(store, clk, cfg.ProtectedPrefix, logger)

	sessStore := session.NewMemoryStore(cfg.SessionTimeout, clk)
	sessions := session.NewManager(sessStore, clk)

	authorizer := gate.New(idm,
		[]string{"/", "/login", "/logout", "/blocked", "/healthz", "/readyz"},
		[]string{"/scan/"},
		logger)

	scanHandler := scan.NewHandler(registry, sessions, logger)
	dashboard := admin.NewHandler(registry, idm, sessions,
		qr.NewPNGRenderer(256), store, cfg.BaseURL, logLevel, logger)

	if err := metrics.Init(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	// 5 req/s with a burst of 10 per IP on the guessable endpoints
	limiter := middleware.NewIPRateLimiter(rate.Limit(5), 10)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.HTTPLogging(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.MaxBodySize(1 << 20))
	r.Use(session.Middleware(sessStore, logger))
	r.Use(gate.Middleware(authorizer, sessions))

	r.Get("/", dashboard.HandleEntry)
	r.Get("/healthz", dashboard.HandleHealth)
	r.Get("/readyz", dashboard.HandleReady)
	r.Get("/blocked", dashboard.HandleBlockedPage)
	r.Post("/logout", dashboard.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		r.Post("/login", dashboard.HandleLogin)
		r.Get("/scan/{id}", scanHandler.HandleScan)
	})

	r.Mount("/dashboard/api", dashboard.Routes())
	r.HandleFunc("/dashboard/*", dashboard.HandleModulePage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics listener is separate so it is never exposed on the public addr
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsListenAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// Periodic sweep of expired sessions
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessStore.Cleanup(ctx)
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("qrgate starting", "addr", cfg.ListenAddr, "metrics_addr", cfg.MetricsListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = metricsSrv.Shutdown(shutdownCtx) //nolint:errcheck
	return srv.Shutdown(shutdownCtx)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
