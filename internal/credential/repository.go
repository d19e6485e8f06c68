package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/tenantgate/pkg/database"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

// Repository persists connected accounts.
type Repository interface {
	// Upsert inserts or reactivates the account keyed by (provider,
	// provider_user_id, tenant_id) and fills in ID and CreatedAt.
	Upsert(ctx context.Context, a *Account) error

	// GetActive returns the most recently updated active account.
	GetActive(ctx context.Context, tenantID string, provider Provider) (*Account, error)

	// ListByTenant returns every account of a tenant.
	ListByTenant(ctx context.Context, tenantID string) ([]Account, error)

	// Revoke clears the token of accounts not already revoked or deleted.
	Revoke(ctx context.Context, provider Provider, providerUserID string, at time.Time) (int64, error)

	// Anonymize clears token and scopes of accounts not already deleted.
	Anonymize(ctx context.Context, provider Provider, providerUserID string, at time.Time) (int64, error)
}

// PostgresRepository implements Repository on the connected_accounts table.
type PostgresRepository struct {
	db database.DBTX
}

// NewPostgresRepository creates a repository.
func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, tenant_id, provider, provider_user_id, access_token_enc, scopes, status, created_at, updated_at, revoked_at, deleted_at`

// Upsert inserts or reactivates an account.
func (r *PostgresRepository) Upsert(ctx context.Context, a *Account) (err error) {
	query := `
		INSERT INTO connected_accounts (id, tenant_id, provider, provider_user_id, access_token_enc, scopes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (provider, provider_user_id, tenant_id) DO UPDATE
		SET access_token_enc = EXCLUDED.access_token_enc,
		    scopes = EXCLUDED.scopes,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at,
		    revoked_at = NULL,
		    deleted_at = NULL
		RETURNING id, created_at`

	ctx, end := database.TraceQuery(ctx, "UpsertConnectedAccount", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		a.ID,
		a.TenantID,
		string(a.Provider),
		a.ProviderUserID,
		a.AccessTokenEnc,
		a.Scopes,
		string(a.Status),
		a.UpdatedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert connected account: %w", err)
	}
	return nil
}

// GetActive returns the tenant's active account for provider.
func (r *PostgresRepository) GetActive(ctx context.Context, tenantID string, provider Provider) (_ *Account, err error) {
	query := `SELECT ` + accountColumns + `
		FROM connected_accounts
		WHERE tenant_id = $1 AND provider = $2 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetActiveConnectedAccount", query)
	defer func() { end(err) }()

	a, err := scanAccount(r.db.QueryRow(ctx, query, tenantID, string(provider)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("connected account", string(provider))
		}
		return nil, fmt.Errorf("get connected account: %w", err)
	}
	return a, nil
}

// ListByTenant returns the tenant's accounts, newest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) (_ []Account, err error) {
	query := `SELECT ` + accountColumns + `
		FROM connected_accounts
		WHERE tenant_id = $1
		ORDER BY updated_at DESC`

	ctx, end := database.TraceQuery(ctx, "ListConnectedAccounts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connected accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connected account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connected accounts: %w", err)
	}
	return accounts, nil
}

// Revoke soft-revokes matching accounts. Re-running it affects no rows.
func (r *PostgresRepository) Revoke(ctx context.Context, provider Provider, providerUserID string, at time.Time) (_ int64, err error) {
	query := `
		UPDATE connected_accounts
		SET status = 'revoked', access_token_enc = '', revoked_at = $3, updated_at = $3
		WHERE provider = $1 AND provider_user_id = $2 AND status = 'active'`

	ctx, end := database.TraceQuery(ctx, "RevokeConnectedAccount", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, string(provider), providerUserID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke connected account: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Anonymize clears personal data from matching accounts. Re-running it
// affects no rows.
func (r *PostgresRepository) Anonymize(ctx context.Context, provider Provider, providerUserID string, at time.Time) (_ int64, err error) {
	query := `
		UPDATE connected_accounts
		SET status = 'deleted', access_token_enc = '', scopes = '{}', deleted_at = $3, updated_at = $3
		WHERE provider = $1 AND provider_user_id = $2 AND status <> 'deleted'`

	ctx, end := database.TraceQuery(ctx, "AnonymizeConnectedAccount", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, string(provider), providerUserID, at)
	if err != nil {
		return 0, fmt.Errorf("anonymize connected account: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a                Account
		provider, status string
	)
	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&provider,
		&a.ProviderUserID,
		&a.AccessTokenEnc,
		&a.Scopes,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.RevokedAt,
		&a.DeletedAt,
	); err != nil {
		return nil, err
	}
	a.Provider = Provider(provider)
	a.Status = Status(status)
	if a.Scopes == nil {
		a.Scopes = []string{}
	}
	return &a, nil
}
