package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for CORS handling.
type CORSConfig struct {
	// AllowedOrigins is the list of allowed origins (e.g. "https://app.example.com").
	// If it contains "*", all origins are allowed.
	AllowedOrigins []string

	// AllowedMethods defaults to GET, POST, PUT, PATCH, DELETE, OPTIONS.
	AllowedMethods []string

	// AllowedHeaders defaults to Accept, Authorization, Content-Type,
	// Idempotency-Key, X-Correlation-ID.
	AllowedHeaders []string

	// ExposedHeaders is the list of headers the browser may access.
	ExposedHeaders []string

	// MaxAge is how long (in seconds) preflight results can be cached.
	// Defaults to 3600 if 0.
	MaxAge int

	// AllowCredentials indicates whether cookies are supported. A wildcard
	// origin is never echoed together with credentials.
	AllowCredentials bool

	// Environment enables the wildcard origin when set to "development".
	Environment string
}

// DefaultAllowedMethods is the verb set the gateway exposes to browsers.
var DefaultAllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

// CORSPolicy is a compiled CORSConfig. It is immutable and safe for
// concurrent use.
type CORSPolicy struct {
	allowWildcard bool
	credentials   bool
	origins       map[string]struct{}
	methods       string
	headers       string
	exposed       string
	maxAge        string
}

// NewCORSPolicy compiles cfg, applying defaults for empty fields.
func NewCORSPolicy(cfg CORSConfig) *CORSPolicy {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = DefaultAllowedMethods
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Correlation-ID"}
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 3600
	}

	p := &CORSPolicy{
		allowWildcard: cfg.Environment == "development",
		credentials:   cfg.AllowCredentials,
		origins:       make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:       strings.Join(cfg.AllowedMethods, ", "),
		headers:       strings.Join(cfg.AllowedHeaders, ", "),
		exposed:       strings.Join(cfg.ExposedHeaders, ", "),
		maxAge:        strconv.Itoa(cfg.MaxAge),
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			p.allowWildcard = true
		}
		p.origins[o] = struct{}{}
	}
	return p
}

// Apply writes the CORS response headers for a request from origin.
func (p *CORSPolicy) Apply(h http.Header, origin string) {
	_, listed := p.origins[origin]
	switch {
	case origin != "" && listed:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	case p.allowWildcard && p.credentials && origin != "":
		// Browsers reject "*" with credentials; echo the origin instead.
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	case p.allowWildcard:
		h.Set("Access-Control-Allow-Origin", "*")
	}

	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	if p.exposed != "" {
		h.Set("Access-Control-Expose-Headers", p.exposed)
	}
	h.Set("Access-Control-Max-Age", p.maxAge)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// Preflight answers an OPTIONS request with 204 and the policy headers.
func (p *CORSPolicy) Preflight(w http.ResponseWriter, r *http.Request) {
	p.Apply(w.Header(), r.Header.Get("Origin"))
	w.WriteHeader(http.StatusNoContent)
}

// CORS returns middleware that applies cfg to every response and answers
// OPTIONS requests directly.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := NewCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				policy.Preflight(w, r)
				return
			}
			policy.Apply(w.Header(), r.Header.Get("Origin"))
			next.ServeHTTP(w, r)
		})
	}
}
