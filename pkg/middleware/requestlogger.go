package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/tenantgate/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// whatever correlation, user, domain and trace fields are present. Mount it
// after RequestLogging and Tracing. Middleware that adds fields later (tenant
// resolution, authentication) calls Enrich to refresh it.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(Enrich(r.Context(), base)))
		})
	}
}

// Enrich returns ctx carrying a logger built from base and ctx's current fields.
func Enrich(ctx context.Context, base *slog.Logger) context.Context {
	return logger.NewContext(ctx, logger.WithContext(ctx, base))
}
