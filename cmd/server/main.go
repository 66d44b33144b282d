package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal.health/patient-portal/internal/api"
	"portal.health/patient-portal/internal/config"
	"portal.health/patient-portal/internal/core"
	"portal.health/patient-portal/internal/logging"
	"portal.health/patient-portal/internal/sessionstore"
	"portal.health/patient-portal/internal/store"
)

func main() {
	seedFlag := flag.Bool("seed-products", false, "Seed the product catalogue when it is empty and exit")
	sweepFlag := flag.Bool("sweep-sessions", false, "Delete activity sessions idle longer than SESSION_MAX_AGE and exit")
	flag.Parse()

	// Load configuration
	config.LoadConfig()
	logging.Setup(config.AppConfig.LogLevel, config.AppConfig.LogFormat)

	if err := run(*seedFlag, *sweepFlag); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(seed, sweep bool) error {
	cfg := config.AppConfig

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	if seed {
		n, err := dbStore.SeedProducts(context.Background(), seedCatalogue)
		if err != nil {
			return fmt.Errorf("product seed failed: %w", err)
		}
		slog.Info("Product seed complete", "inserted", n)
		return nil
	}

	sessions, closeSessions, err := newSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	generator, closeGenerator, err := newGenerator(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeGenerator()

	activityService := core.NewActivityService(sessions, generator, cfg.LLMTimeout)

	if sweep {
		removed, err := activityService.Sweep(context.Background(), cfg.SessionMaxAge)
		if err != nil {
			return fmt.Errorf("session sweep failed: %w", err)
		}
		slog.Info("Session sweep finished", "removed", removed)
		return nil
	}

	apiHandler := api.NewAPIHandler(core.NewUserService(dbStore), core.NewCartService(dbStore), activityService)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second, // report generation can take a while
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", serverAddr, "llm_provider", generator.Name(), "session_store", cfg.SessionStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-quit:
	}
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server exiting gracefully")
	return nil
}

func newSessionStore(cfg config.Config) (sessionstore.Store, func(), error) {
	switch cfg.SessionStore {
	case "redis":
		rs, err := sessionstore.NewRedisStore(sessionstore.RedisOptions{RedisURL: cfg.RedisURL, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize session store: %w", err)
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				slog.Error("Error closing session store", "error", err)
			}
		}, nil
	default:
		slog.Warn("Using in-memory session store; sessions are lost on restart")
		return sessionstore.NewMemoryStore(), func() {}, nil
	}
}

func newGenerator(ctx context.Context, cfg config.Config) (core.TextGenerator, func(), error) {
	switch cfg.LLMProvider {
	case "openai":
		return core.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.LLMModel), func() {}, nil
	default:
		llm, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize LLM service: %w", err)
		}
		return llm, llm.Close, nil
	}
}
