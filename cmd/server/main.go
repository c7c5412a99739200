package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/artreg/mediastore/pkg/mediastore"
	"github.com/artreg/mediastore/pkg/mediastore/api"
	"github.com/artreg/mediastore/pkg/mediastore/config"
)

// Config carries the process-level settings; everything about backends
// and policy comes through config.WithEnv.
type Config struct {
	EnvPrefix string `env:"MEDIASTORE_ENV_PREFIX" env-default:""`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read environment", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	serverConfig, err := config.Load(config.WithEnv(cfg.EnvPrefix))
	if err != nil {
		logger.Error("Failed to load server configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := serverConfig.BuildRepositories(ctx)
	if err != nil {
		logger.Error("Failed to build repositories", "error", err)
		os.Exit(1)
	}
	if repos.Pool != nil {
		defer repos.Pool.Close()
	}

	providers, err := serverConfig.BuildProviders()
	if err != nil {
		logger.Error("Failed to build storage providers", "error", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService(repos, providers, logger)
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}

	// The delivery channel is external; until one is wired in, alerts go
	// to the log.
	monitor, err := serverConfig.BuildMonitor(repos, providers, mediastore.NewLogNotifier(logger), logger)
	if err != nil {
		logger.Error("Failed to build capacity monitor", "error", err)
		os.Exit(1)
	}
	go monitor.Run(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: routes(svc),
	}

	go func() {
		logger.Info("Media storage server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"backends", len(serverConfig.Backends))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

func routes(svc mediastore.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Mount("/api/v1/files", api.NewFilesHandler(svc).Routes())
	r.Mount("/api/v1/backends", api.NewBackendsHandler(svc).Routes())

	return r
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
