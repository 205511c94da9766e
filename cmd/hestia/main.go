package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	hhttp "github.com/campfirehq/hestia/internal/adapter/http"
	"github.com/campfirehq/hestia/internal/adapter/otelx"
	"github.com/campfirehq/hestia/internal/adapter/platform"
	"github.com/campfirehq/hestia/internal/adapter/redisstore"
	"github.com/campfirehq/hestia/internal/config"
	"github.com/campfirehq/hestia/internal/logger"
	"github.com/campfirehq/hestia/internal/middleware"
	"github.com/campfirehq/hestia/internal/resilience"
	"github.com/campfirehq/hestia/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"redis", cfg.Redis.Addr,
		"platform", cfg.Platform.BaseURL,
	)

	ctx := context.Background()

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	store, err := redisstore.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = store.Close() }()
	log.Info("context store connected")

	// --- Services ---

	var oauth *platform.OAuthClient
	if cfg.OAuth.ClientID != "" {
		oauth = platform.NewOAuthClient(cfg.OAuth)
	}
	authority := service.NewAuthority(oauth, metrics, log)

	sessions := func(token string) *platform.Client {
		c := platform.NewClient(cfg.Platform.BaseURL, token)
		c.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		return c
	}

	def := buildApp(log)
	registry := service.NewRegistry(def, store, authority, sessions, log)
	runner := service.NewRunner(registry, authority, cfg.Tasks.Timeout, metrics, log)

	var owner *platform.Client
	if cfg.Platform.OwnerToken != "" {
		owner = platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.OwnerToken)
	}
	dispatcher := service.NewDispatcher(registry, runner, owner, metrics, log)

	appMux := hhttp.NewAppMux(log)
	registry.SetRouteBinder(appMux)

	if err := registry.RestoreAll(ctx); err != nil {
		return fmt.Errorf("restore installations: %w", err)
	}

	// --- HTTP ---

	guard, err := middleware.NewReplayGuard(cfg.Replay.MaxSizeMB<<20, cfg.Replay.TTL, metrics, log)
	if err != nil {
		return fmt.Errorf("replay guard: %w", err)
	}
	defer guard.Close()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(cfg))

	handlers := hhttp.NewHandlers(dispatcher, log)
	hhttp.MountRoutes(r, handlers, appMux, guard.Handler)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Detached callbacks already in flight get to finish.
	runner.Wait()
	return nil
}

func healthHandler(cfg *config.Config) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		Redis  string `json:"redis"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthStatus{Status: "ok", Redis: cfg.Redis.Addr})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
