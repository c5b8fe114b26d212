// Maitre - Telegram restaurant booking concierge
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

	"github.com/nsavelyev/maitre/internal/agent"
	"github.com/nsavelyev/maitre/internal/ai"
	"github.com/nsavelyev/maitre/internal/browser"
	"github.com/nsavelyev/maitre/internal/config"
	"github.com/nsavelyev/maitre/internal/conversation"
	"github.com/nsavelyev/maitre/internal/middleware"
	"github.com/nsavelyev/maitre/internal/session"
	"github.com/nsavelyev/maitre/internal/store"
	"github.com/nsavelyev/maitre/internal/telegram"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting concierge", "port", cfg.Port, "webhook", cfg.UseWebhook, "browser_backend", cfg.BrowserBackend)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath, cfg.MaxHistory)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	var backend browser.Backend
	switch cfg.BrowserBackend {
	case config.BackendDocker:
		backend, err = browser.NewDockerBackend(ctx)
		if err != nil {
			slog.Error("Failed to initialize Docker browser backend", "error", err)
			os.Exit(1)
		}
	default:
		backend = browser.NewRemoteBackend(cfg.BrowserProviderURL, cfg.BrowserAPIKey)
	}

	pool := session.NewPool(backend, cfg.MaxSessions, cfg.IdleTimeout)
	session.StartReaper(ctx, pool, cfg.ReapInterval)

	agentClient, err := agent.NewClient(cfg.AgentAddr, logger)
	if err != nil {
		slog.Error("Failed to connect to automation service", "error", err)
		os.Exit(1)
	}
	executor := agent.NewExecutor(pool, agentClient, cfg.AutomationTimeout, cfg.MaxRetries)

	model := ai.NewClient(cfg.OpenAIKey, cfg.OpenAIModel, logger)
	engine := conversation.NewEngine(repo, model, executor, pool, cfg.MaxHistory)
	dispatcher := conversation.NewDispatcher(engine)

	tgClient := telegram.NewClient(cfg.BotToken, cfg.ChunkSize)
	bot := telegram.NewBot(tgClient, dispatcher)

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := repo.Ping(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if cfg.UseWebhook {
		r.With(middleware.WebhookAuth(cfg.WebhookSecret)).
			Post(cfg.WebhookPath, bot.WebhookHandler())
		if err := tgClient.SetWebhook(ctx, cfg.WebhookURL, cfg.WebhookSecret); err != nil {
			slog.Error("Failed to register webhook", "error", err)
			os.Exit(1)
		}
		slog.Info("Webhook registered", "path", cfg.WebhookPath)
	} else {
		if err := tgClient.DeleteWebhook(ctx); err != nil {
			slog.Warn("Failed to clear webhook before polling", "error", err)
		}
		go bot.Poll(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

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
