package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/tenantgate/internal/credential"
	"github.com/utafrali/tenantgate/pkg/database"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

func newRepoFixture(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewPostgresRepository(mock), mock
}

func TestPostgresRepository_Insert(t *testing.T) {
	repo, mock := newRepoFixture(t)
	defer mock.Close()

	actor := "fb-1"
	now := time.Now().UTC()
	ev := &Event{
		ID:                "ev-1",
		Provider:          credential.ProviderFacebook,
		EventType:         "facebook.deauthorize",
		ActorID:           &actor,
		Payload:           map[string]any{"algorithm": "HMAC-SHA256", "user_id": "fb-1"},
		SignatureVerified: true,
		ConfirmationCode:  "0123456789abcdef",
		Status:            StatusReceived,
		ReceivedAt:        now,
	}

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("ev-1", "facebook", "facebook.deauthorize", &actor,
			[]byte(`{"algorithm":"HMAC-SHA256","user_id":"fb-1"}`),
			true, "0123456789abcdef", "received", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Insert_Error(t *testing.T) {
	repo, mock := newRepoFixture(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnError(errors.New("relation does not exist"))

	err := repo.Insert(context.Background(), &Event{ID: "ev-1", Payload: map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert webhook event")
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	repo, mock := newRepoFixture(t)
	defer mock.Close()

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("ev-1", "failed", "db down", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "ev-1", StatusFailed, "db down", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStatus_NotFound(t *testing.T) {
	repo, mock := newRepoFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("missing", "processed", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStatus(context.Background(), "missing", StatusProcessed, "", time.Now())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepository_GetByCode(t *testing.T) {
	repo, mock := newRepoFixture(t)
	defer mock.Close()

	actor := "ig-1"
	received := time.Now().UTC().Add(-time.Minute)
	processed := received.Add(time.Second)

	mock.ExpectQuery("SELECT .+ FROM webhook_events").
		WithArgs("0123456789abcdef").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "provider", "event_type", "actor_id", "payload", "signature_verified",
			"confirmation_code", "status", "processing_error", "received_at", "processed_at",
		}).AddRow(
			"ev-1", "instagram", "instagram.data_deletion", &actor, []byte(`{"user_id":"ig-1"}`), true,
			"0123456789abcdef", "processed", (*string)(nil), received, &processed,
		))

	ev, err := repo.GetByCode(context.Background(), "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, credential.ProviderInstagram, ev.Provider)
	assert.Equal(t, StatusProcessed, ev.Status)
	assert.Equal(t, "ig-1", ev.Payload["user_id"])
	require.NotNil(t, ev.ProcessedAt)
	assert.Equal(t, processed, *ev.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByCode_NotFound(t *testing.T) {
	repo, mock := newRepoFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM webhook_events").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
