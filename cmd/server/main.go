// Soup server - lateral thinking puzzle game over HTTP.
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
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/haigui-labs/soupserver/internal/api"
	"github.com/haigui-labs/soupserver/internal/config"
	"github.com/haigui-labs/soupserver/internal/game"
	"github.com/haigui-labs/soupserver/internal/identity"
	"github.com/haigui-labs/soupserver/internal/judge"
	"github.com/haigui-labs/soupserver/internal/middleware"
	"github.com/haigui-labs/soupserver/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	seeded, err := store.SeedPuzzles(context.Background(), repo, cfg.PuzzlesPath)
	if err != nil {
		slog.Error("Failed to seed puzzles", "error", err)
		os.Exit(1)
	}
	if seeded > 0 {
		slog.Info("Puzzles seeded", "count", seeded)
	}

	// Judge selection: Gemini when an API key is configured, otherwise the
	// static fallback so the game stays playable in development.
	var classifier judge.Classifier
	if cfg.Judge.APIKey != "" {
		gemini, err := judge.NewGeminiJudge(context.Background(), cfg.Judge.APIKey, cfg.Judge.Model)
		if err != nil {
			slog.Error("Failed to initialize Gemini judge", "error", err)
			os.Exit(1)
		}
		classifier = gemini
		slog.Info("Gemini judge initialized")
	} else {
		classifier = judge.NewStaticJudge()
		slog.Info("AI judge disabled (GEMINI_API_KEY not set), answering IRRELEVANT to everything")
	}

	svc := game.NewService(repo, classifier)
	resolver := identity.NewResolver(repo)
	sessionHandler := api.NewSessionHandler(svc)
	wsHandler := api.NewExchangeSocketHandler(svc, cfg.AllowedOrigins())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	r.Route("/api", func(r chi.Router) {
		r.Use(identity.Middleware(resolver, cfg.IsDevelopment()))
		sessionHandler.Routes(r)
	})

	// WebSocket exchange transport.
	r.Route("/ws", func(r chi.Router) {
		r.Use(identity.Middleware(resolver, cfg.IsDevelopment()))
		r.Get("/exchange", wsHandler.ServeHTTP)
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
