// Package api exposes the accrual service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/solalog/solalog-server/internal/accrual"
	"github.com/solalog/solalog-server/internal/auth"
	"github.com/solalog/solalog-server/internal/model"
)

// Service is the subset of accrual.Service the handlers use.
type Service interface {
	LogLocation(ctx context.Context, id model.Identity, p model.Point) (*accrual.LogResult, error)
	Status(ctx context.Context, userID string) (*accrual.Status, error)
	Ranking(ctx context.Context) ([]model.RankEntry, error)
	LatestLocations(ctx context.Context) ([]model.UserLocation, error)
}

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Config holds router settings.
type Config struct {
	// LogRateLimit is the number of /log-location requests allowed per
	// client IP per minute. Zero or less disables the limit.
	LogRateLimit int
}

// NewRouter builds the HTTP handler for the public API.
func NewRouter(svc Service, tokens TokenParser, cfg Config) http.Handler {
	h := &handler{svc: svc}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ranking", h.ranking)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(tokens))

		r.With(logRateLimit(cfg.LogRateLimit)).Post("/log-location", h.logLocation)
		r.Get("/status", h.status)
		r.Get("/users-locations", h.usersLocations)
	})

	return r
}

func logRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeMessage(w, http.StatusTooManyRequests, msgTooManyRequests)
		}),
	)
}
