// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/config"
	"github.com/capitalize-ai/localchat/internal/handler"
	"github.com/capitalize-ai/localchat/internal/llm"
	natsclient "github.com/capitalize-ai/localchat/internal/nats"
	"github.com/capitalize-ai/localchat/internal/service"
	"github.com/capitalize-ai/localchat/internal/session"
	"github.com/capitalize-ai/localchat/internal/store"
	"github.com/capitalize-ai/localchat/pkg/logger"
	"github.com/capitalize-ai/localchat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewWithFormat(cfg.Logging.Level, logger.Format(cfg.Logging.Format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting API server")

	if cfg.UsesDefaultSecret() {
		log.Warn("session.secret is the built-in default; set SECRET_KEY before exposing this server")
	}

	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "localchat", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Open the database
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	if err := st.Migrate(); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	readyChecks := map[string]handler.Pinger{"database": st}

	// The event feed is optional. events stays a nil interface when disabled.
	var events service.EventPublisher
	if cfg.NATS.URL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			Token:    cfg.NATS.Token,
			CAFile:   cfg.NATS.CAFile,
			CertFile: cfg.NATS.CertFile,
			KeyFile:  cfg.NATS.KeyFile,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		publisher := natsclient.NewPublisher(natsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}

		events = publisher
		readyChecks["nats"] = natsClient
	}

	llmClient := llm.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.Timeout)

	// Initialize services
	conversationSvc := service.NewConversationService(st, events, log)
	authSvc := service.NewAuthService(st, events, log)
	chatSvc := service.NewChatService(llmClient, conversationSvc, events, log)

	sessions := session.NewManager(session.Config{
		Secret:     cfg.Session.Secret,
		TTL:        cfg.Session.TTL,
		CookieName: cfg.Session.CookieName,
		Secure:     cfg.Session.Secure,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Auth:              authSvc,
		Conversations:     conversationSvc,
		Chat:              chatSvc,
		Sessions:          sessions,
		Users:             st,
		ReadyChecks:       readyChecks,
		Logger:            log,
		CORSOrigins:       cfg.CORS.Origins,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		LoginRateLimit:    cfg.RateLimit.LoginRequests,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("ollama_url", cfg.Ollama.URL),
			zap.Bool("events_enabled", events != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
