package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/homepresence/internal/metrics"
	"github.com/prudhvinik1/homepresence/internal/services"
)

// RouterConfig carries the dependencies of the HTTP API.
type RouterConfig struct {
	Auth        *services.AuthService
	Status      *services.StatusService
	Friendships *services.FriendshipService
	Locations   *services.LocationService
	Devices     *services.DeviceService
	Logger      *slog.Logger

	// HealthCheck backs /readyz. Nil reports ready.
	HealthCheck func(ctx context.Context) error
	// AuthRateLimiter guards register and login when set.
	AuthRateLimiter *IPRateLimiter
}

type handler struct {
	auth        *services.AuthService
	status      *services.StatusService
	friendships *services.FriendshipService
	locations   *services.LocationService
	devices     *services.DeviceService
	logger      *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &handler{
		auth:        cfg.Auth,
		status:      cfg.Status,
		friendships: cfg.Friendships,
		locations:   cfg.Locations,
		devices:     cfg.Devices,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthCheck(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter.Middleware())
			}
			r.Post("/auth/register", h.register)
			r.Post("/auth/login", h.login)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Auth))

			r.Post("/auth/logout", h.logout)
			r.Post("/auth/logout-all", h.logoutAll)

			r.Get("/status", h.getStatus)
			r.Put("/status", h.putStatus)
			r.Get("/friends/status", h.friendStatuses)

			r.Get("/locations", h.listLocations)
			r.Put("/locations", h.putLocation)
			r.Delete("/locations/{id}", h.deleteLocation)

			r.Get("/friendships", h.listFriendships)
			r.Post("/friendships", h.requestFriendship)
			r.Post("/friendships/{id}/accept", h.acceptFriendship)

			r.Put("/devices/{id}/push-token", h.putPushToken)
		})
	})

	return r
}
