// Package middleware holds the gateway's request authentication and rate
// limiting.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/tenantgate/internal/identity"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
	"github.com/utafrali/tenantgate/pkg/httputil"
	"github.com/utafrali/tenantgate/pkg/logger"
	pkgmiddleware "github.com/utafrali/tenantgate/pkg/middleware"
)

// credentialSource extracts a raw token from a request.
type credentialSource func(r *http.Request) (token string, src identity.Source, ok bool)

// Authenticator verifies credentials and stores the resolved principal in
// the request context.
type Authenticator struct {
	validator  identity.Validator
	resolver   *identity.Resolver
	cookieName string
	logger     *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(v identity.Validator, resolver *identity.Resolver, cookieName string, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		validator:  v,
		resolver:   resolver,
		cookieName: cookieName,
		logger:     logger,
	}
}

// RequireSession authenticates with the session cookie only.
func (a *Authenticator) RequireSession() func(http.Handler) http.Handler {
	return a.require(a.fromCookie)
}

// RequireBearer authenticates with the Authorization header only.
func (a *Authenticator) RequireBearer() func(http.Handler) http.Handler {
	return a.require(fromBearer)
}

// RequireAny accepts a session cookie or a bearer token, cookie first.
func (a *Authenticator) RequireAny() func(http.Handler) http.Handler {
	return a.require(func(r *http.Request) (string, identity.Source, bool) {
		if tok, src, ok := a.fromCookie(r); ok {
			return tok, src, true
		}
		return fromBearer(r)
	})
}

func (a *Authenticator) require(source credentialSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Preflight carries no credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, src, ok := source(r)
			if !ok {
				unauthorized(w, r, a.logger)
				return
			}

			claims, err := a.validator.Validate(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "credential rejected",
					slog.String("source", string(src)),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				unauthorized(w, r, a.logger)
				return
			}

			profile, err := a.resolver.Lookup(r.Context(), claims)
			if err != nil {
				if errors.Is(err, identity.ErrPrincipalNotFound) {
					unauthorized(w, r, a.logger)
					return
				}
				httputil.WriteError(w, r, apperrors.BadGateway("IDENTITY_UNAVAILABLE", "identity provider unavailable", err), a.logger)
				return
			}

			p := &identity.Principal{Claims: *claims, Profile: profile, Source: src}
			if src == identity.SourceSession {
				p.SessionToken = token
			}

			ctx := identity.NewContext(r.Context(), p)
			ctx = logger.WithUserID(ctx, p.UserID())
			ctx = pkgmiddleware.Enrich(ctx, a.logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) fromCookie(r *http.Request) (string, identity.Source, bool) {
	c, err := r.Cookie(a.cookieName)
	if err != nil || c.Value == "" {
		return "", identity.SourceSession, false
	}
	return c.Value, identity.SourceSession, true
}

func fromBearer(r *http.Request) (string, identity.Source, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", identity.SourceBearer, false
	}
	token = strings.TrimSpace(token)
	return token, identity.SourceBearer, token != ""
}

// unauthorized writes the single generic 401 used for every auth failure.
func unauthorized(w http.ResponseWriter, r *http.Request, l *slog.Logger) {
	httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), l)
}
