package controller

import (
	"time"

	integrationApp "github.com/cassiomorais/integrations/internal/application/integration"
	"github.com/cassiomorais/integrations/internal/infrastructure/config"
	"github.com/cassiomorais/integrations/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/integrations/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Lifecycle        *integrationApp.Lifecycle
	AccessGate       *integrationApp.AccessGate
	IdempotencyStore customMW.IdempotencyStore
	IdempotencyTTL   time.Duration
	DatabasePing     Pinger
	RedisPing        Pinger
	Metrics          *observability.Metrics
	Server           config.ServerConfig
	JWTSecret        string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing("integrations-api"))
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.DatabasePing, deps.RedisPing)
	integrationH := NewIntegrationController(deps.Lifecycle, deps.AccessGate)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Authenticated by the integration secret; throttled per client IP.
		r.With(customMW.RateLimit(deps.Server.AccessTokenRateLimit)).Post("/access-token", integrationH.AccessToken)

		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireAuth(deps.JWTSecret))

			r.Route("/integrations", func(r chi.Router) {
				r.With(customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL)).Post("/", integrationH.Create)
				r.Get("/", integrationH.List)
				r.Post("/callback", integrationH.Callback)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", integrationH.Get)
					r.Patch("/", integrationH.Edit)
					r.Delete("/", integrationH.RequestDeletion)
					r.Get("/authorization-url", integrationH.AuthorizationURL)
					r.Post("/activate", integrationH.Activate)
					r.Post("/pause", integrationH.Pause)
					r.Post("/secret", integrationH.GenerateSecret)
					r.Post("/deletion/confirm", integrationH.ConfirmDeletion)
					r.Post("/deletion/abort", integrationH.AbortDeletion)
				})
			})
		})
	})

	return r
}
