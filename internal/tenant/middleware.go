package tenant

import (
	"context"
	"net/http"

	"github.com/utafrali/tenantgate/pkg/logger"
)

type contextKey struct{}

// HeaderProductDomain carries the resolved domain to the client and backend.
const HeaderProductDomain = "X-Product-Domain"

// NewContext returns ctx carrying d.
func NewContext(ctx context.Context, d Domain) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, d)
	return logger.WithProductDomain(ctx, string(d))
}

// FromContext returns the domain stored in ctx, or Dashboard if none.
func FromContext(ctx context.Context) Domain {
	if d, ok := ctx.Value(contextKey{}).(Domain); ok {
		return d
	}
	return Dashboard
}

// Middleware resolves the domain from r.Host and stores it in the request
// context. Client-supplied X-Product-Domain values are ignored.
func Middleware(r *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			d := r.Resolve(req.Host, "")
			w.Header().Set(HeaderProductDomain, string(d))
			next.ServeHTTP(w, req.WithContext(NewContext(req.Context(), d)))
		})
	}
}
