package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tiretrack/server/internal/http/handlers"
	"github.com/tiretrack/server/internal/middleware"
)

// RouterDeps holds what the router wires together
type RouterDeps struct {
	Auth         *handlers.AuthHandler
	Sessions     middleware.SessionResolver
	CookieName   string
	Metrics      http.Handler
	Instrument   func(http.Handler) http.Handler
	RequestLimit *middleware.RateLimiter
	VerifyLimit  *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if deps.Instrument != nil {
		r.Use(deps.Instrument)
	}

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(limit(deps.RequestLimit)).Post("/request_otp", deps.Auth.HandleRequestOTP)
		r.With(limit(deps.VerifyLimit)).Post("/verify_otp", deps.Auth.HandleVerifyOTP)
		r.Post("/logout", deps.Auth.HandleLogout)
		r.With(middleware.RequireSession(deps.Sessions, deps.CookieName)).Post("/token", deps.Auth.HandleAccessToken)
	})

	// Protected routes (require a live session)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(deps.Sessions, deps.CookieName))
		r.Get("/me", deps.Auth.HandleMe)
		r.Patch("/me", deps.Auth.HandleUpdateMe)
	})

	return r
}

func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(rl, middleware.GetIPKey)
}
