// Package app wires the gateway's dependencies and runs its HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/tenantgate/internal/config"
	"github.com/utafrali/tenantgate/internal/credential"
	"github.com/utafrali/tenantgate/internal/handler"
	"github.com/utafrali/tenantgate/internal/identity"
	gwmiddleware "github.com/utafrali/tenantgate/internal/middleware"
	"github.com/utafrali/tenantgate/internal/proxy"
	"github.com/utafrali/tenantgate/internal/sessioncache"
	"github.com/utafrali/tenantgate/internal/tenant"
	"github.com/utafrali/tenantgate/internal/vault"
	"github.com/utafrali/tenantgate/internal/webhook"
	"github.com/utafrali/tenantgate/migrations"
	"github.com/utafrali/tenantgate/pkg/database"
	"github.com/utafrali/tenantgate/pkg/health"
	"github.com/utafrali/tenantgate/pkg/httpclient"
	pkgkafka "github.com/utafrali/tenantgate/pkg/kafka"
	"github.com/utafrali/tenantgate/pkg/tracing"
)

// App wires together all dependencies and runs the gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// Stops the rate limiter sweep and the session cache janitor.
	stopBackground context.CancelFunc
}

// NewApp creates a new application instance. An invalid encryption key is
// returned as a *vault.ConfigError so the caller can treat it as fatal.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	// The vault is checked before anything touches the network.
	cipher, err := vault.New(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, err
	}

	// Resources created so far are released in reverse order on failure.
	var undo closers
	defer func() {
		if err != nil {
			undo.run()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	undo.add(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
	})

	pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	undo.add(pool.Close)
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.Postgres.Host),
		slog.Int("port", cfg.Postgres.Port),
		slog.String("database", cfg.Postgres.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Event publishing is optional; the audit row is the source of truth.
	var (
		producer  *pkgkafka.Producer
		publisher webhook.EventPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = producer
		undo.add(func() { _ = producer.Close() })
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka brokers not configured, account events disabled")
	}

	validator, err := newValidator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	undo.add(stopBackground)

	cache := sessioncache.New[identity.Profile](cfg.SessionCacheTTL, sessioncache.WithName("identity"))
	go sessioncache.RunJanitor(bgCtx, cache, time.Minute, logger)

	var fetcher identity.ProfileFetcher
	if cfg.AuthProviderURL != "" {
		fetcher = identity.NewProviderClient(cfg.AuthProviderURL, cfg.AuthProviderKey,
			httpclient.NewCircuitBreakerClient(
				httpclient.New(httpclient.DefaultConfig()),
				httpclient.DefaultCircuitBreakerConfig("auth-provider"),
				logger,
			))
	}
	resolver := identity.NewResolver(cache, fetcher, logger)

	credentials := credential.NewService(credential.NewPostgresRepository(pool), cipher, logger)
	ingestor := webhook.NewIngestor(webhook.NewPostgresRepository(pool), credentials, publisher, webhook.Config{
		AppSecret:     cfg.WebhookAppSecret,
		StatusURL:     cfg.WebhookStatusURL,
		AllowUnsigned: cfg.WebhookAllowUnsigned,
	}, logger)
	if cfg.WebhookAppSecret == "" {
		logger.Warn("WEBHOOK_APP_SECRET not set, callbacks cannot be verified")
	}

	gateway, err := proxy.New(proxy.Config{
		BackendURL:        cfg.BackendURL,
		Timeout:           cfg.ProxyTimeout,
		MaxBodyBytes:      cfg.ProxyMaxBodyBytes,
		SessionCookieName: cfg.SessionCookieName,
		CORS:              cfg.CORS(),
	}, proxy.NewClient(), logger)
	if err != nil {
		return nil, fmt.Errorf("init proxy: %w", err)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
	}
	healthHandler.RegisterNonCritical("backend", func(ctx context.Context) error {
		return dial(ctx, cfg.BackendURL)
	})

	router := handler.NewRouter(bgCtx, cfg, handler.Deps{
		Tenants:     tenant.NewResolver(cfg.LocalPorts()),
		Auth:        gwmiddleware.NewAuthenticator(validator, resolver, cfg.SessionCookieName, logger),
		Identity:    identity.NewHandler(resolver, logger),
		Credentials: credential.NewHandler(credentials, logger),
		Webhooks:    webhook.NewHandler(ingestor, logger),
		Proxy:       gateway,
		Health:      healthHandler,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProxyTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		stopBackground: stopBackground,
	}, nil
}

// closers collects cleanup functions for a partially built App.
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// newValidator picks OIDC discovery when an issuer is configured, otherwise
// a shared-secret HS256 validator.
func newValidator(ctx context.Context, cfg *config.Config) (identity.Validator, error) {
	if cfg.UsesOIDC() {
		v, err := identity.NewOIDCValidator(ctx, cfg.OIDCIssuerURL, cfg.OIDCAudience)
		if err != nil {
			return nil, fmt.Errorf("init oidc validator: %w", err)
		}
		return v, nil
	}
	v, err := identity.NewHS256Validator(cfg.JWTSecret, "", "")
	if err != nil {
		return nil, fmt.Errorf("init jwt validator: %w", err)
	}
	return v, nil
}

func dial(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse backend URL: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	_ = conn.Close()
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("backend", a.cfg.BackendURL),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Background sweepers
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.stopBackground()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
