package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	configloader "github.com/foxseedlab/coachsession/external/config"
	repositoryimpl "github.com/foxseedlab/coachsession/external/repository"
	webhookimpl "github.com/foxseedlab/coachsession/external/webhook"
	"github.com/foxseedlab/coachsession/internal/api"
	"github.com/foxseedlab/coachsession/internal/coaching"
	"github.com/foxseedlab/coachsession/internal/config"
	"github.com/samber/do/v2"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "session_store", cfg.SessionStore)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)
	defer func() {
		_ = injector.Shutdown()
	}()

	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	coaching.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	manager, err := do.Invoke[*coaching.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve coaching manager", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           api.NewRouter(cfg, manager),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
}
