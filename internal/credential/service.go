package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/tenantgate/internal/vault"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

// Cipher encrypts and decrypts tokens. *vault.Vault satisfies it.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(secret string) (string, error)
}

// ConnectInput holds the parameters for connecting a provider account.
type ConnectInput struct {
	TenantID       string
	Provider       Provider
	ProviderUserID string
	AccessToken    string
	Scopes         []string
}

// Service implements the credential store.
type Service struct {
	repo   Repository
	cipher Cipher
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(repo Repository, cipher Cipher, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cipher: cipher,
		logger: logger,
		now:    time.Now,
	}
}

// Connect encrypts the access token and upserts the account as active.
func (s *Service) Connect(ctx context.Context, in ConnectInput) (*Account, error) {
	if in.TenantID == "" || in.ProviderUserID == "" {
		return nil, apperrors.InvalidInput("tenant_id and provider_user_id are required")
	}
	if in.AccessToken == "" {
		return nil, apperrors.InvalidInput("access_token is required")
	}
	if _, err := ParseProvider(string(in.Provider)); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	enc, err := s.cipher.Encrypt(in.AccessToken)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("encrypt access token: %w", err))
	}

	scopes := in.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	a := &Account{
		ID:             uuid.New().String(),
		TenantID:       in.TenantID,
		Provider:       in.Provider,
		ProviderUserID: in.ProviderUserID,
		AccessTokenEnc: enc,
		Scopes:         scopes,
		Status:         StatusActive,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, a); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "provider account connected",
		slog.String("account_id", a.ID),
		slog.String("tenant_id", a.TenantID),
		slog.String("provider", string(a.Provider)),
	)
	return a, nil
}

// AccessToken returns the decrypted token of the tenant's active account.
// A token that cannot be decrypted is an internal error, never an empty
// string.
func (s *Service) AccessToken(ctx context.Context, tenantID string, provider Provider) (string, error) {
	a, err := s.repo.GetActive(ctx, tenantID, provider)
	if err != nil {
		return "", err
	}

	token, err := s.cipher.Decrypt(a.AccessTokenEnc)
	if err == nil && token == "" {
		err = vault.ErrDecryptionFailed
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "stored access token unusable",
			slog.String("account_id", a.ID),
			slog.String("tenant_id", tenantID),
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()),
		)
		return "", apperrors.Internal(fmt.Errorf("decrypt access token: %w", err))
	}
	return token, nil
}

// List returns the tenant's accounts without token material.
func (s *Service) List(ctx context.Context, tenantID string) ([]Account, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

// Revoke soft-revokes every account for the provider user and reports how
// many rows changed. Already revoked accounts are left untouched.
func (s *Service) Revoke(ctx context.Context, provider Provider, providerUserID string) (int64, error) {
	if providerUserID == "" {
		return 0, apperrors.InvalidInput("provider_user_id is required")
	}
	n, err := s.repo.Revoke(ctx, provider, providerUserID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "provider account revoked",
		slog.String("provider", string(provider)),
		slog.Int64("rows", n),
	)
	return n, nil
}

// Anonymize clears token and scopes for the provider user and marks the
// accounts deleted. Already deleted accounts are left untouched.
func (s *Service) Anonymize(ctx context.Context, provider Provider, providerUserID string) (int64, error) {
	if providerUserID == "" {
		return 0, apperrors.InvalidInput("provider_user_id is required")
	}
	n, err := s.repo.Anonymize(ctx, provider, providerUserID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "provider account anonymized",
		slog.String("provider", string(provider)),
		slog.Int64("rows", n),
	)
	return n, nil
}

// IsNotFound reports whether err means no matching account exists.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
