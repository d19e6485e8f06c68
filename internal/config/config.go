package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/utafrali/tenantgate/internal/tenant"
	pkgconfig "github.com/utafrali/tenantgate/pkg/config"
	"github.com/utafrali/tenantgate/pkg/database"
	"github.com/utafrali/tenantgate/pkg/middleware"
	"github.com/utafrali/tenantgate/pkg/tracing"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "tenantgate"

const defaultJWTSecret = "change-me-in-production"

// Config holds all configuration for the gateway. It is read once at start.
type Config struct {
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Internal backend behind the proxy surfaces.
	BackendURL        string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	ProxyTimeout      time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`
	ProxyMaxBodyBytes int64         `env:"PROXY_MAX_BODY_BYTES" envDefault:"10485760"`

	// 64 hex characters. Validated by vault.New so a bad key is fatal.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY,unset"`

	// Provider webhooks
	WebhookAppSecret     string `env:"WEBHOOK_APP_SECRET,unset"`
	WebhookStatusURL     string `env:"WEBHOOK_STATUS_URL" envDefault:"http://localhost:8080/webhooks/deletion-status"`
	WebhookAllowUnsigned bool   `env:"WEBHOOK_ALLOW_UNSIGNED" envDefault:"false"`

	// Identity
	JWTSecret         string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	OIDCIssuerURL     string        `env:"OIDC_ISSUER_URL"`
	OIDCAudience      string        `env:"OIDC_AUDIENCE"`
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"session"`
	AuthProviderURL   string        `env:"AUTH_PROVIDER_URL"`
	AuthProviderKey   string        `env:"AUTH_PROVIDER_API_KEY,unset"`
	SessionCacheTTL   time.Duration `env:"SESSION_CACHE_TTL" envDefault:"5m"`

	// Tenant classification
	LocalPortDomains string `env:"LOCAL_PORT_DOMAINS"`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`

	// Rate limiting
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"100"`

	// Messaging. Empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Access control for operational and internal endpoints.
	MetricsAllowedCIDRs  []string `env:"METRICS_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128"`
	PprofAllowedCIDRs    []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.0/8,::1/128"`
	InternalAllowedCIDRs []string `env:"INTERNAL_ALLOWED_CIDRS" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128"`

	Postgres           database.PostgresConfig
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	Tracing  tracing.Config

	localPorts map[int]tenant.Domain
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load("")
}

func load(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithPrefix(cfg, prefix); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = ServiceName
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

// IsDevelopment reports whether the gateway runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LocalPorts returns the parsed LOCAL_PORT_DOMAINS table.
func (c *Config) LocalPorts() map[int]tenant.Domain {
	if c.localPorts == nil {
		return tenant.DefaultLocalPorts()
	}
	return c.localPorts
}

// CORS returns the browser policy shared by the gateway-owned APIs and the
// proxy surfaces. Surfaces override methods, headers and max age.
func (c *Config) CORS() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins:   c.CORSAllowedOrigins,
		ExposedHeaders:   []string{"X-Correlation-ID", tenant.HeaderProductDomain},
		AllowCredentials: c.CORSAllowCredentials,
		Environment:      c.Environment,
	}
}

// UsesOIDC reports whether sessions are verified against an OIDC issuer.
func (c *Config) UsesOIDC() bool {
	return c.OIDCIssuerURL != ""
}

// validate rejects inconsistent settings.
func (c *Config) validate() error {
	if !c.IsDevelopment() && !c.UsesOIDC() && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	if c.UsesOIDC() && c.OIDCAudience == "" {
		return fmt.Errorf("OIDC_AUDIENCE is required when OIDC_ISSUER_URL is set")
	}
	if !c.IsDevelopment() && c.WebhookAppSecret == "" && !c.WebhookAllowUnsigned {
		return fmt.Errorf("WEBHOOK_APP_SECRET is required in %s environment", c.Environment)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute http(s) URL, got %q", c.BackendURL)
	}
	if c.ProxyTimeout <= 0 {
		return fmt.Errorf("PROXY_TIMEOUT must be positive, got %s", c.ProxyTimeout)
	}
	if c.ProxyMaxBodyBytes <= 0 {
		return fmt.Errorf("PROXY_MAX_BODY_BYTES must be positive")
	}
	if c.SessionCacheTTL < 0 {
		return fmt.Errorf("SESSION_CACHE_TTL must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	ports, err := tenant.ParseLocalPorts(c.LocalPortDomains)
	if err != nil {
		return fmt.Errorf("LOCAL_PORT_DOMAINS: %w", err)
	}
	c.localPorts = ports
	return nil
}
