// Package credential stores third-party provider tokens encrypted at rest.
package credential

import (
	"fmt"
	"time"
)

// Provider identifies an external identity or messaging provider.
type Provider string

const (
	ProviderFacebook  Provider = "facebook"
	ProviderInstagram Provider = "instagram"
	ProviderWhatsApp  Provider = "whatsapp"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderFacebook, ProviderInstagram, ProviderWhatsApp}

// ParseProvider validates s.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Status is the lifecycle state of a connected account.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusDeleted Status = "deleted"
)

// Account is a tenant's connection to a provider. AccessTokenEnc holds an
// EncryptedSecret and is empty once the account is revoked or deleted.
type Account struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Provider       Provider   `json:"provider"`
	ProviderUserID string     `json:"provider_user_id"`
	AccessTokenEnc string     `json:"-"`
	Scopes         []string   `json:"scopes"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}
