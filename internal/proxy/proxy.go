// Package proxy forwards the gateway's API surfaces to the internal backend,
// keeping cookie and bearer credentials strictly separated.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/tenantgate/internal/identity"
	"github.com/utafrali/tenantgate/internal/tenant"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
	"github.com/utafrali/tenantgate/pkg/httpclient"
	"github.com/utafrali/tenantgate/pkg/httputil"
	"github.com/utafrali/tenantgate/pkg/logger"
	"github.com/utafrali/tenantgate/pkg/middleware"
	"github.com/utafrali/tenantgate/pkg/tracing"
)

const (
	tracerName       = "github.com/utafrali/tenantgate/internal/proxy"
	maxResponseBytes = 32 << 20
)

// Gateway-owned headers sent to the backend. Client-supplied values for
// these are never copied.
const (
	HeaderUserID        = "X-User-ID"
	HeaderTenantID      = "X-Tenant-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// passthroughRequestHeaders are copied verbatim when present.
var passthroughRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"If-Match",
	"If-None-Match",
	"User-Agent",
	"Idempotency-Key",
}

// passthroughResponseHeaders are relayed from the backend.
var passthroughResponseHeaders = []string{
	"Cache-Control",
	"Content-Type",
	"ETag",
	"Last-Modified",
	"Location",
	"Retry-After",
}

var forwardedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Config configures a Gateway.
type Config struct {
	BackendURL        string
	Timeout           time.Duration
	MaxBodyBytes      int64
	SessionCookieName string
	CORS              middleware.CORSConfig
}

// Gateway forwards requests to a single backend.
type Gateway struct {
	backend     *url.URL
	client      httpclient.Doer
	cfg         Config
	logger      *slog.Logger
	maxResponse int64
}

// NewClient returns the HTTP client the gateway expects: no retries, no
// redirect following, deadline taken from the request context.
func NewClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 0
	cfg.MaxRetries = 0
	cfg.FollowRedirects = false
	return httpclient.New(cfg)
}

// New creates a Gateway.
func New(cfg Config, client httpclient.Doer, logger *slog.Logger) (*Gateway, error) {
	u, err := url.Parse(cfg.BackendURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", cfg.BackendURL)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("proxy timeout must be positive")
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "session"
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return &Gateway{
		backend:     u,
		client:      client,
		cfg:         cfg,
		logger:      logger,
		maxResponse: maxResponseBytes,
	}, nil
}

// Handler serves one surface. Mount it at s.Prefix + "/*".
func (g *Gateway) Handler(s Surface) http.Handler {
	corsCfg := g.cfg.CORS
	corsCfg.AllowedMethods = middleware.DefaultAllowedMethods
	corsCfg.AllowedHeaders = s.AllowedHeaders
	corsCfg.MaxAge = 86400
	if s.Credential == BearerCredential {
		corsCfg.AllowCredentials = false
	}
	policy := middleware.NewCORSPolicy(corsCfg)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			policy.Preflight(w, r)
			return
		}
		policy.Apply(w.Header(), r.Header.Get("Origin"))

		if !forwardedMethods[r.Method] {
			w.Header().Set("Allow", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			httputil.WriteError(w, r, &apperrors.AppError{
				Code:    "METHOD_NOT_ALLOWED",
				Message: "method not allowed",
				Status:  http.StatusMethodNotAllowed,
			}, g.logger)
			return
		}

		g.forward(w, r, s)
	})
}

func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, s Surface) {
	body, err := g.readBody(w, r)
	if err != nil {
		httputil.WriteError(w, r, err, g.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.Timeout)
	defer cancel()

	target := g.targetURL(r.URL, s)
	ctx, span := tracing.StartSpan(ctx, tracerName, "proxy."+s.Name,
		attribute.String("http.request.method", r.Method),
		attribute.String("proxy.surface", s.Name),
	)

	out, err := http.NewRequestWithContext(ctx, r.Method, target, bodyReader(body))
	if err != nil {
		tracing.EndSpan(span, err)
		httputil.WriteError(w, r, apperrors.Internal(fmt.Errorf("build backend request: %w", err)), g.logger)
		return
	}
	g.copyRequestHeaders(out, r, s)

	start := time.Now()
	resp, err := g.client.Do(ctx, out)
	proxyDuration.WithLabelValues(s.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		perr := classify(ctx, err)
		tracing.EndSpan(span, perr)
		g.fail(w, r, s, perr)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, g.maxResponse+1))
	if err != nil {
		perr := classify(ctx, err)
		tracing.EndSpan(span, perr)
		g.fail(w, r, s, perr)
		return
	}
	if int64(len(respBody)) > g.maxResponse {
		perr := invalidResponse(fmt.Errorf("response body exceeds %d bytes", g.maxResponse))
		tracing.EndSpan(span, perr)
		g.fail(w, r, s, perr)
		return
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	contentType := resp.Header.Get("Content-Type")
	if len(respBody) > 0 && !isJSON(contentType) {
		if !json.Valid(respBody) {
			perr := invalidResponse(fmt.Errorf("status %d content-type %q", resp.StatusCode, contentType))
			tracing.EndSpan(span, perr)
			g.fail(w, r, s, perr)
			return
		}
		contentType = "application/json"
	}
	tracing.EndSpan(span, nil)

	h := w.Header()
	for _, name := range passthroughResponseHeaders {
		if v := resp.Header.Values(name); len(v) > 0 {
			h[http.CanonicalHeaderKey(name)] = v
		}
	}
	if s.Credential == CookieCredential {
		for _, c := range resp.Header.Values("Set-Cookie") {
			h.Add("Set-Cookie", c)
		}
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if len(respBody) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(respBody)))
	}

	proxyRequestsTotal.WithLabelValues(s.Name, r.Method, strconv.Itoa(resp.StatusCode)).Inc()
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

// readBody buffers the request body, enforcing the size cap before the
// backend is contacted.
func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	tooLarge := &apperrors.AppError{
		Code:    "PAYLOAD_TOO_LARGE",
		Message: "request body too large",
		Status:  http.StatusRequestEntityTooLarge,
	}
	if r.ContentLength > g.cfg.MaxBodyBytes {
		return nil, tooLarge
	}

	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, tooLarge
		}
		return nil, apperrors.InvalidInput("unreadable request body")
	}
	return b, nil
}

// targetURL rewrites the surface prefix onto the backend prefix. The
// remainder is cleaned so it cannot climb above the backend prefix.
func (g *Gateway) targetURL(in *url.URL, s Surface) string {
	rest := strings.TrimPrefix(in.Path, s.Prefix)
	trailing := strings.HasSuffix(rest, "/") && len(rest) > 1
	rest = path.Clean("/" + rest)
	if rest == "/" {
		rest = ""
	}
	if trailing {
		rest += "/"
	}

	u := *g.backend
	u.Path = g.backend.Path + s.BackendPrefix + rest
	u.RawPath = ""
	u.RawQuery = in.RawQuery
	u.Fragment = ""
	return u.String()
}

func (g *Gateway) copyRequestHeaders(out, in *http.Request, s Surface) {
	for _, name := range passthroughRequestHeaders {
		if v := in.Header.Values(name); len(v) > 0 {
			out.Header[http.CanonicalHeaderKey(name)] = v
		}
	}

	switch s.Credential {
	case CookieCredential:
		// The raw header goes through verbatim. When it lacks the session
		// cookie, the single cookie resolved by the auth layer is rebuilt.
		raw := in.Header.Get("Cookie")
		if _, err := in.Cookie(g.cfg.SessionCookieName); err != nil {
			if p, ok := identity.FromContext(in.Context()); ok && p.SessionToken != "" {
				raw = (&http.Cookie{Name: g.cfg.SessionCookieName, Value: p.SessionToken}).String()
			}
		}
		if raw != "" {
			out.Header.Set("Cookie", raw)
		}
	case BearerCredential:
		if auth := in.Header.Get("Authorization"); auth != "" {
			out.Header.Set("Authorization", auth)
		}
	}

	out.Header.Set("X-Forwarded-For", forwardedFor(in))

	ctx := in.Context()
	if p, ok := identity.FromContext(ctx); ok {
		out.Header.Set(HeaderUserID, p.UserID())
		if t := p.TenantID(); t != "" {
			out.Header.Set(HeaderTenantID, t)
		}
	}
	out.Header.Set(tenant.HeaderProductDomain, string(tenant.FromContext(ctx)))
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		out.Header.Set(HeaderCorrelationID, id)
	}
}

// forwardedFor is the explicit X-Forwarded-For, else X-Real-IP, else "".
func forwardedFor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.Header.Get("X-Real-IP")
}

func (g *Gateway) fail(w http.ResponseWriter, r *http.Request, s Surface, perr *Error) {
	proxyErrorsTotal.WithLabelValues(s.Name, perr.Code).Inc()
	proxyRequestsTotal.WithLabelValues(s.Name, r.Method, strconv.Itoa(http.StatusBadGateway)).Inc()
	httputil.WriteError(w, r, perr.AppError(), g.logger)
}

func classify(ctx context.Context, err error) *Error {
	if httpclient.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeout(err)
	}
	return unavailable(err)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func bodyReader(b []byte) io.Reader {
	if b == nil {
		return http.NoBody
	}
	return bytes.NewReader(b)
}
