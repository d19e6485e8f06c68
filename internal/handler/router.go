// Package handler assembles the gateway's HTTP surface.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/tenantgate/internal/config"
	"github.com/utafrali/tenantgate/internal/credential"
	"github.com/utafrali/tenantgate/internal/identity"
	gwmiddleware "github.com/utafrali/tenantgate/internal/middleware"
	"github.com/utafrali/tenantgate/internal/proxy"
	"github.com/utafrali/tenantgate/internal/tenant"
	"github.com/utafrali/tenantgate/internal/webhook"
	"github.com/utafrali/tenantgate/pkg/health"
	pkgmiddleware "github.com/utafrali/tenantgate/pkg/middleware"
)

// Deps are the components the router mounts.
type Deps struct {
	Tenants     *tenant.Resolver
	Auth        *gwmiddleware.Authenticator
	Identity    *identity.Handler
	Credentials *credential.Handler
	Webhooks    *webhook.Handler
	Proxy       *proxy.Gateway
	Health      *health.Handler
}

// NewRouter creates a chi router with global middleware, health endpoints,
// gateway-owned APIs and the two proxy surfaces. ctx bounds background work
// started by middleware.
func NewRouter(ctx context.Context, cfg *config.Config, d Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(gwmiddleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(config.ServiceName))
	r.Use(pkgmiddleware.Tracing(config.ServiceName))
	r.Use(pkgmiddleware.RequestLogger(logger))
	r.Use(tenant.Middleware(d.Tenants))

	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())

	r.With(pkgmiddleware.IPAllowlist(cfg.MetricsAllowedCIDRs, logger)).Handle("/metrics", promhttp.Handler())
	pkgmiddleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	// Gateway-owned browser APIs.
	r.Group(func(r chi.Router) {
		r.Use(pkgmiddleware.CORS(cfg.CORS()))
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(30 * time.Second))

		r.Get("/api/v1/context", tenant.ContextHandler(d.Tenants))

		r.Route("/api/v1/identity", func(r chi.Router) {
			r.Use(d.Auth.RequireAny())
			r.Post("/sync", d.Identity.Sync)
			r.Get("/me", d.Identity.Me)
		})
	})

	// Provider callbacks are server to server and carry their own signature.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		d.Webhooks.Routes(r)
	})

	r.Route("/internal/v1/credentials", func(r chi.Router) {
		r.Use(pkgmiddleware.IPAllowlist(cfg.InternalAllowedCIDRs, logger))
		r.Use(chimw.Timeout(30 * time.Second))
		d.Credentials.Routes(r)
	})

	// Proxy surfaces answer their own preflights and enforce their own
	// backend deadline.
	session, public := proxy.SessionSurface(), proxy.PublicSurface()
	r.With(d.Auth.RequireSession()).Handle(session.Prefix+"/*", d.Proxy.Handler(session))
	r.With(d.Auth.RequireBearer()).Handle(public.Prefix+"/*", d.Proxy.Handler(public))

	return r
}
