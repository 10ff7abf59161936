// Coach Sidekick - real-time coaching call transcript and analysis server
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

	"github.com/ashureev/coach-sidekick/internal/ai"
	"github.com/ashureev/coach-sidekick/internal/analysis"
	"github.com/ashureev/coach-sidekick/internal/api"
	"github.com/ashureev/coach-sidekick/internal/assistant"
	"github.com/ashureev/coach-sidekick/internal/batch"
	"github.com/ashureev/coach-sidekick/internal/config"
	"github.com/ashureev/coach-sidekick/internal/middleware"
	"github.com/ashureev/coach-sidekick/internal/session"
	"github.com/ashureev/coach-sidekick/internal/store"
	"github.com/ashureev/coach-sidekick/internal/ws"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	sessions := session.NewStore()

	coordinator := batch.NewCoordinator(sessions, repo, batch.Policy{
		EntryThreshold: cfg.Batch.EntryThreshold,
		MaxInterval:    cfg.Batch.MaxInterval,
		SaveTimeout:    cfg.Batch.SaveTimeout,
	})

	// Analysis is optional: without an LLM key the transcript pipeline
	// still ingests, merges, and persists.
	var engine *analysis.Engine
	if cfg.AnalysisEnabled() {
		llm, err := ai.NewOpenAIClient(ai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout,
		})
		if err != nil {
			slog.Error("Failed to initialize LLM client", "error", err)
			os.Exit(1)
		}

		var suggestions analysis.SuggestionProvider
		var history analysis.HistoryProvider
		if cfg.AssistantEnabled() {
			assistantClient, err := assistant.NewClient(assistant.Config{
				APIKey:     cfg.Assistant.APIKey,
				DomainName: cfg.Assistant.DomainName,
				BaseURL:    cfg.Assistant.BaseURL,
			})
			if err != nil {
				slog.Error("Failed to initialize assistant client", "error", err)
				os.Exit(1)
			}
			suggestions = assistantClient
			history = assistantClient
			slog.Info("Assistant enrichment enabled")
		} else {
			slog.Info("Assistant enrichment disabled (PERSONAL_AI_API_KEY or PERSONAL_AI_DOMAIN_NAME not set)")
		}

		engine = analysis.NewEngine(llm, suggestions, history, repo)
		slog.Info("Analysis engine enabled", "model", cfg.OpenAI.Model)
	} else {
		slog.Info("Analysis disabled (OPENAI_API_KEY not set)")
	}

	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())
	handler := api.NewHandler(sessions, repo, coordinator, engine, hub)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	handler.RegisterRoutes(r)

	// WebSocket endpoint for live meeting views.
	r.Get("/ws/meetings", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	// Start background workers.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batch.StartWorker(ctx, coordinator, cfg.Batch.SweepInterval)
	slog.Info("Batch save worker started", "interval", cfg.Batch.SweepInterval)

	cleaners := []session.Cleaner{sessions}
	if engine != nil {
		cleaners = append(cleaners, engine)
	}
	session.StartCleanupWorker(ctx, cfg.Session.MaxAge, cfg.Session.CleanupInterval, cleaners...)
	slog.Info("Cleanup worker started", "max_age", cfg.Session.MaxAge, "interval", cfg.Session.CleanupInterval)

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

	// Flush any unsaved finalized entries before exit.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer flushCancel()
	for _, botID := range sessions.AllSessionIDs() {
		result := coordinator.ForceSaveSession(flushCtx, botID)
		if !result.Success && result.Error != "" && result.Error != batch.ErrInProgress && result.Error != batch.ErrUnknownSession {
			slog.Error("Final flush failed", "bot_id", botID, "error", result.Error)
		}
	}

	slog.Info("Server stopped successfully")
}
