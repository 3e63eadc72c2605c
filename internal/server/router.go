package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/talentboard/supportbot/internal/api"
	"github.com/talentboard/supportbot/internal/api/handlers"
	"github.com/talentboard/supportbot/internal/api/middleware"
	"go.uber.org/zap"
)

const (
	defaultMaxBodyBytes   int64 = 1 << 20
	defaultRequestTimeout       = 60 * time.Second
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Log            *zap.Logger
	APIKeys        []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	ChatHandler    *handlers.ChatHandler
	SourcesHandler *handlers.SourcesHandler
	// ChatLogHandler is optional; without it the chat log routes are not mounted.
	ChatLogHandler *handlers.ChatLogHandler

	// Health is optional; when set /health also pings it.
	Health HealthChecker
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.MaxBodyBytes(cfg.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				api.Error(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Use(chimw.Timeout(cfg.RequestTimeout))

		r.Post("/chat", cfg.ChatHandler.Chat)
		r.Get("/search", cfg.ChatHandler.Search)
		if cfg.ChatLogHandler != nil {
			r.Get("/chat/logs", cfg.ChatLogHandler.List)
			r.Post("/chat/{id}/feedback", cfg.ChatLogHandler.Feedback)
		}

		r.Route("/sources/{type}", func(r chi.Router) {
			r.Post("/sync", cfg.SourcesHandler.SyncType)
			r.Delete("/", cfg.SourcesHandler.Remove)
			r.Post("/{id}/sync", cfg.SourcesHandler.SyncOne)
			r.Delete("/{id}", cfg.SourcesHandler.Remove)
		})
		r.Post("/rebuild", cfg.SourcesHandler.Rebuild)
		r.Get("/jobs/{id}", cfg.SourcesHandler.GetJob)
	})

	return r
}
