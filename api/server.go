/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from X-Forwarded-For / X-Real-IP
  3. Logger:     Structured request logging (slog)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontends
  6. RateLimit:  Per-client token bucket, mutating routes only

ROUTE GROUPS:
  /add, /spend, /reset   Ledger writes (rate limited)
  /balance               Ledger read
  /api/lots              Open lots
  /api/scenarios/*       Demo scenarios
  /healthz, /metrics     Ops

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logger and rate limiter
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimiter    *RateLimiter
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Ledger routes
	r.Group(func(r chi.Router) {
		r.Use(opts.RateLimiter.Middleware)
		r.Post("/add", h.AddTransaction)
		r.Post("/spend", h.SpendPoints)
		r.Post("/reset", h.ResetLedger)
	})
	r.Get("/balance", h.GetBalances)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/lots", h.ListLots)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(opts.RateLimiter.Middleware).Post("/load", h.LoadScenario)
		})
	})

	// Ops routes
	r.Get("/healthz", h.Healthz)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	return r
}
