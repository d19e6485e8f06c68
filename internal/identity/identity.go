// Package identity verifies session and bearer credentials and resolves the
// authenticated principal's profile.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidToken covers every verification failure. Callers map it to a
	// generic 401 so the response never reveals whether a principal exists.
	ErrInvalidToken = errors.New("invalid or expired credential")

	// ErrPrincipalNotFound is returned by the provider for unknown subjects.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// Source records where a credential came from.
type Source string

const (
	SourceSession Source = "session"
	SourceBearer  Source = "bearer"
)

// Claims are the verified claims of a session or bearer token.
type Claims struct {
	Subject   string
	TenantID  string
	Issuer    string
	Audience  []string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// Profile is the provider-side view of a principal.
type Profile struct {
	Subject   string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal is the authenticated caller of one request. It is never stored.
type Principal struct {
	Claims  Claims
	Profile Profile
	Source  Source

	// SessionToken is the raw session cookie value, kept so the proxy can
	// rebuild the single relevant cookie when the Cookie header is absent.
	SessionToken string
}

// UserID returns the principal's stable subject.
func (p *Principal) UserID() string { return p.Claims.Subject }

// TenantID returns the tenant named by the token, falling back to the
// provider profile when the token carries none.
func (p *Principal) TenantID() string {
	if p.Claims.TenantID != "" {
		return p.Claims.TenantID
	}
	return p.Profile.TenantID
}

// Validator verifies a raw token.
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

type principalKey struct{}

// NewContext returns ctx carrying p.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
