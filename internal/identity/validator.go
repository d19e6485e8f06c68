package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// HS256Validator verifies tokens signed with a shared secret.
type HS256Validator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewHS256Validator creates a validator. Empty issuer or audience skips that check.
func NewHS256Validator(secret, issuer, audience string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}, nil
}

// Validate verifies signature, expiry and the optional issuer and audience.
func (v *HS256Validator) Validate(_ context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	tok, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported claim type %T", ErrInvalidToken, tok.Claims)
	}
	return claimsFromMap(raw)
}

// OIDCValidator verifies tokens against an OIDC issuer's published keys.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCValidator runs OIDC discovery against issuerURL.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	return &OIDCValidator{verifier: provider.Verifier(&oidc.Config{ClientID: audience})}, nil
}

// NewOIDCValidatorWithKeySet skips discovery; used when the JWKS location is
// known or in tests with a static key set.
func NewOIDCValidatorWithKeySet(issuerURL, audience string, keySet oidc.KeySet) *OIDCValidator {
	return &OIDCValidator{verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: audience})}
}

// Validate verifies the token and extracts its claims.
func (v *OIDCValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", ErrInvalidToken, err)
	}
	claims, err := claimsFromMap(raw)
	if err != nil {
		return nil, err
	}
	claims.Issuer = idToken.Issuer
	claims.Audience = idToken.Audience
	claims.ExpiresAt = idToken.Expiry
	return claims, nil
}

func claimsFromMap(raw map[string]any) (*Claims, error) {
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}

	c := &Claims{
		Subject:  str("sub"),
		TenantID: str("tenant_id"),
		Issuer:   str("iss"),
		Email:    str("email"),
		Name:     str("name"),
	}
	if c.Subject == "" {
		c.Subject = str("user_id")
	}
	if c.TenantID == "" {
		c.TenantID = str("org_id")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	switch aud := raw["aud"].(type) {
	case string:
		c.Audience = []string{aud}
	case []any:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				c.Audience = append(c.Audience, s)
			}
		}
	}
	if exp, ok := raw["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return c, nil
}
