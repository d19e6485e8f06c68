package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/tenantgate/internal/credential"
	"github.com/utafrali/tenantgate/pkg/database"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

// Repository persists the audit log.
type Repository interface {
	// Insert appends one audit row.
	Insert(ctx context.Context, e *Event) error

	// UpdateStatus records the outcome of the side effect.
	UpdateStatus(ctx context.Context, id string, status Status, processingErr string, at time.Time) error

	// GetByCode returns the newest row carrying the confirmation code.
	GetByCode(ctx context.Context, code string) (*Event, error)
}

// PostgresRepository implements Repository on the webhook_events table.
type PostgresRepository struct {
	db database.DBTX
}

// NewPostgresRepository creates a repository.
func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert writes e. Every delivery gets its own row, so duplicates are kept.
func (r *PostgresRepository) Insert(ctx context.Context, e *Event) (err error) {
	query := `
		INSERT INTO webhook_events (id, provider, event_type, actor_id, payload, signature_verified, confirmation_code, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	ctx, end := database.TraceQuery(ctx, "InsertWebhookEvent", query)
	defer func() { end(err) }()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		e.ID,
		string(e.Provider),
		e.EventType,
		e.ActorID,
		payload,
		e.SignatureVerified,
		e.ConfirmationCode,
		string(e.Status),
		e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// UpdateStatus sets the processing outcome of a row.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, processingErr string, at time.Time) (err error) {
	query := `
		UPDATE webhook_events
		SET status = $2, processing_error = NULLIF($3, ''), processed_at = $4
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateWebhookEventStatus", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, string(status), processingErr, at)
	if err != nil {
		return fmt.Errorf("update webhook event status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("webhook event", id)
	}
	return nil
}

// GetByCode looks a row up by confirmation code.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (_ *Event, err error) {
	query := `
		SELECT id, provider, event_type, actor_id, payload, signature_verified, confirmation_code, status, processing_error, received_at, processed_at
		FROM webhook_events
		WHERE confirmation_code = $1
		ORDER BY received_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetWebhookEventByCode", query)
	defer func() { end(err) }()

	var (
		e                Event
		provider, status string
		payload          []byte
	)
	err = r.db.QueryRow(ctx, query, code).Scan(
		&e.ID,
		&provider,
		&e.EventType,
		&e.ActorID,
		&payload,
		&e.SignatureVerified,
		&e.ConfirmationCode,
		&status,
		&e.ProcessingError,
		&e.ReceivedAt,
		&e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("webhook event", code)
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}

	e.Provider = credential.Provider(provider)
	e.Status = Status(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode webhook payload: %w", err)
		}
	}
	return &e, nil
}
