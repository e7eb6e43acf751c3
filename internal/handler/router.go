package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/localchat/internal/middleware"
	"github.com/capitalize-ai/localchat/internal/service"
	"github.com/capitalize-ai/localchat/internal/session"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// RouterConfig collects what NewRouter wires together.
type RouterConfig struct {
	Auth          *service.AuthService
	Conversations *service.ConversationService
	Chat          *service.ChatService
	Sessions      *session.Manager
	Users         middleware.UserLookup
	ReadyChecks   map[string]Pinger
	Logger        *logger.Logger

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	LoginRateLimit    int
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	healthHandler := NewHealthHandler(cfg.ReadyChecks)
	authHandler := NewAuthHandler(cfg.Auth, cfg.Sessions, log)
	conversationHandler := NewConversationHandler(cfg.Conversations, log)
	chatHandler := NewChatHandler(cfg.Chat, log)
	modelHandler := NewModelHandler(cfg.Chat, log)

	r := chi.NewRouter()

	// Global middleware. Session runs before Logging so requests are logged
	// with their user id.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.Session(cfg.Sessions, cfg.Users, log))
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if cfg.LoginRateLimit > 0 {
					r.Use(middleware.LoginRateLimit(cfg.LoginRateLimit, window))
				}
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
			})
			r.Get("/check", authHandler.Check)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession)
				r.Post("/logout", authHandler.Logout)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession)
				r.Use(middleware.RequireAdmin)
				r.Get("/users", authHandler.ListUsers)
				r.Get("/users/{id}/approve", authHandler.Approve)
				r.Post("/users/{id}/approve", authHandler.Approve)
				r.Get("/users/{id}/reject", authHandler.Reject)
				r.Post("/users/{id}/reject", authHandler.Reject)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)
			if cfg.RateLimitRequests > 0 {
				r.Use(middleware.RateLimit(cfg.RateLimitRequests, window))
			}

			r.Get("/health", modelHandler.Health)
			r.Get("/models", modelHandler.List)
			r.Post("/pull", modelHandler.Pull)
			r.Post("/delete", modelHandler.Delete)

			r.Post("/chat", chatHandler.Chat)
			r.Post("/save-message", chatHandler.SaveMessage)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationHandler.List)
				r.Post("/", conversationHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", conversationHandler.Get)
					r.Delete("/", conversationHandler.Delete)
					r.Put("/title", conversationHandler.Rename)
				})
			})
		})
	})

	return r
}
