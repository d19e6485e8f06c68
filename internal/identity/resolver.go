package identity

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/tenantgate/internal/sessioncache"
)

const fetchTimeout = 5 * time.Second

// Resolver turns verified claims into a Profile, memoizing results in a
// session cache and collapsing concurrent provider calls per subject.
type Resolver struct {
	cache    *sessioncache.Cache[Profile]
	provider ProfileFetcher
	group    singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver creates a resolver. A nil provider derives profiles from the
// token claims alone.
func NewResolver(cache *sessioncache.Cache[Profile], provider ProfileFetcher, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:    cache,
		provider: provider,
		logger:   logger,
		now:      time.Now,
	}
}

// Lookup returns the cached profile for the subject, fetching it once on a
// miss. The cache is an optimization only: a miss always falls through, and
// only provider data is cached, so the result never depends on which token
// populated the entry.
func (r *Resolver) Lookup(ctx context.Context, claims *Claims) (Profile, error) {
	if r.provider == nil {
		return r.fromClaims(claims), nil
	}
	if e, ok := r.cache.Get(claims.Subject); ok {
		return withClaims(e.Value, claims), nil
	}
	return r.load(ctx, claims)
}

// Sync refreshes the subject from the provider and upserts the cache. It is
// the write path used after a principal is created or updated upstream.
func (r *Resolver) Sync(ctx context.Context, claims *Claims) (Profile, error) {
	if r.provider == nil {
		return r.fromClaims(claims), nil
	}
	r.cache.Delete(claims.Subject)
	return r.load(ctx, claims)
}

func (r *Resolver) load(ctx context.Context, claims *Claims) (Profile, error) {
	// Detach from the first caller's cancellation; the result is shared.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
	defer cancel()
	v, err, _ := r.group.Do(claims.Subject, func() (any, error) {
		p, err := r.provider.FetchProfile(fetchCtx, claims.Subject)
		if err != nil {
			return Profile{}, err
		}
		r.cache.Set(claims.Subject, p)
		return p, nil
	})
	if err != nil {
		r.logger.WarnContext(ctx, "identity provider lookup failed",
			slog.String("subject", claims.Subject),
			slog.String("error", err.Error()),
		)
		return Profile{}, err
	}
	return withClaims(v.(Profile), claims), nil
}

// withClaims overlays the token's tenant on a copy of a cached profile.
func withClaims(p Profile, c *Claims) Profile {
	if c.TenantID != "" {
		p.TenantID = c.TenantID
	}
	return p
}

func (r *Resolver) fromClaims(c *Claims) Profile {
	return Profile{
		Subject:   c.Subject,
		TenantID:  c.TenantID,
		Email:     c.Email,
		Name:      c.Name,
		UpdatedAt: r.now().UTC(),
	}
}
