package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/tenantgate/internal/credential"
)

// ErrAuditWrite marks a failed audit insert. It never changes the response.
var ErrAuditWrite = errors.New("webhook audit write failed")

// ErrUnsigned marks a callback whose signature did not verify.
var ErrUnsigned = errors.New("webhook signature not verified")

const confirmationCodeBytes = 8

// AccountMutator applies the account side effect. *credential.Service
// satisfies it. Both methods must be idempotent per (provider, actor).
type AccountMutator interface {
	Revoke(ctx context.Context, provider credential.Provider, providerUserID string) (int64, error)
	Anonymize(ctx context.Context, provider credential.Provider, providerUserID string) (int64, error)
}

// Config configures an Ingestor.
type Config struct {
	AppSecret     string
	StatusURL     string
	AllowUnsigned bool
}

// Result reports both phases of one callback. AuditErr is the durable write,
// SideEffectErr the best-effort mutation.
type Result struct {
	EventID          string
	ConfirmationCode string
	URL              string
	ActorID          string
	Verified         bool
	Status           Status
	Affected         int64

	AuditErr      error
	SideEffectErr error
}

// Rejected reports whether the callback must be answered with 401.
func (r *Result) Rejected() bool {
	return errors.Is(r.SideEffectErr, ErrUnsigned)
}

// Ingestor runs the two-phase webhook protocol.
type Ingestor struct {
	repo      Repository
	mutator   AccountMutator
	publisher EventPublisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	rand      io.Reader
}

// NewIngestor creates an Ingestor. publisher may be nil.
func NewIngestor(repo Repository, mutator AccountMutator, publisher EventPublisher, cfg Config, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		repo:      repo,
		mutator:   mutator,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		rand:      rand.Reader,
	}
}

// Handle processes one callback. The returned error is non-nil only for
// malformed input (ErrMissingSignedRequest, ErrInvalidPayload); every other
// failure is reported in the Result.
func (in *Ingestor) Handle(ctx context.Context, provider credential.Provider, kind Kind, signedRequest string) (*Result, error) {
	sr, err := ParseSignedRequest(signedRequest)
	if err != nil {
		callbacksTotal.WithLabelValues(string(provider), string(kind), "invalid").Inc()
		return nil, err
	}

	code, err := in.confirmationCode()
	if err != nil {
		return nil, fmt.Errorf("generate confirmation code: %w", err)
	}

	res := &Result{
		EventID:          uuid.NewString(),
		ConfirmationCode: code,
		URL:              in.statusURL(code),
		ActorID:          sr.UserID,
		Verified:         sr.Verify(in.cfg.AppSecret),
		Status:           StatusReceived,
	}
	log := in.logger.With(
		slog.String("event_id", res.EventID),
		slog.String("provider", string(provider)),
		slog.String("kind", string(kind)),
	)

	// Phase 1: the audit row must exist before any side effect.
	ev := &Event{
		ID:                res.EventID,
		Provider:          provider,
		EventType:         EventType(provider, kind),
		Payload:           sr.AuditPayload(),
		SignatureVerified: res.Verified,
		ConfirmationCode:  code,
		Status:            StatusReceived,
		ReceivedAt:        in.now().UTC(),
	}
	if res.ActorID != "" {
		actor := res.ActorID
		ev.ActorID = &actor
	}
	if err := in.repo.Insert(ctx, ev); err != nil {
		res.AuditErr = fmt.Errorf("%w: %w", ErrAuditWrite, err)
		auditFailuresTotal.WithLabelValues(string(provider), string(kind)).Inc()
		log.ErrorContext(ctx, "webhook audit write failed", slog.String("error", err.Error()))
	}

	// Phase 2: best effort. An unverified callback is rejected whether or
	// not its audit row was written.
	switch {
	case !res.Verified && !in.cfg.AllowUnsigned:
		res.Status = StatusSkipped
		res.SideEffectErr = ErrUnsigned
		log.WarnContext(ctx, "webhook signature not verified")
	case res.AuditErr != nil:
		res.Status = StatusSkipped
	case res.ActorID == "":
		res.Status = StatusSkipped
		log.WarnContext(ctx, "webhook without user_id, side effect skipped")
	default:
		in.applySideEffect(ctx, log, provider, kind, res)
	}

	if res.AuditErr == nil {
		in.recordStatus(ctx, log, provider, kind, res)
	}

	callbacksTotal.WithLabelValues(string(provider), string(kind), string(res.Status)).Inc()
	return res, nil
}

func (in *Ingestor) applySideEffect(ctx context.Context, log *slog.Logger, provider credential.Provider, kind Kind, res *Result) {
	var (
		n   int64
		err error
	)
	switch kind {
	case KindDeauthorize:
		n, err = in.mutator.Revoke(ctx, provider, res.ActorID)
	case KindDataDeletion:
		n, err = in.mutator.Anonymize(ctx, provider, res.ActorID)
	default:
		err = fmt.Errorf("no side effect for kind %q", kind)
	}
	if err != nil {
		res.Status = StatusFailed
		res.SideEffectErr = err
		sideEffectFailuresTotal.WithLabelValues(string(provider), string(kind), "mutation").Inc()
		log.ErrorContext(ctx, "webhook side effect failed", slog.String("error", err.Error()))
		return
	}

	res.Status = StatusProcessed
	res.Affected = n
	log.InfoContext(ctx, "webhook side effect applied", slog.Int64("affected", n))

	// Replays change no rows and announce nothing.
	if n == 0 || in.publisher == nil {
		return
	}
	if err := publishAccountEvent(ctx, in.publisher, kind, provider, res.ActorID, res.EventID, n); err != nil {
		sideEffectFailuresTotal.WithLabelValues(string(provider), string(kind), "publish").Inc()
		log.WarnContext(ctx, "account event not published", slog.String("error", err.Error()))
	}
}

func (in *Ingestor) recordStatus(ctx context.Context, log *slog.Logger, provider credential.Provider, kind Kind, res *Result) {
	if res.Status == StatusReceived {
		return
	}
	msg := ""
	if res.SideEffectErr != nil {
		msg = res.SideEffectErr.Error()
	}
	if err := in.repo.UpdateStatus(ctx, res.EventID, res.Status, msg, in.now().UTC()); err != nil {
		sideEffectFailuresTotal.WithLabelValues(string(provider), string(kind), "status").Inc()
		log.WarnContext(ctx, "webhook status not recorded", slog.String("error", err.Error()))
	}
}

// confirmationCode returns 16 lowercase hex characters.
func (in *Ingestor) confirmationCode() (string, error) {
	b := make([]byte, confirmationCodeBytes)
	if _, err := io.ReadFull(in.rand, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (in *Ingestor) statusURL(code string) string {
	u, err := url.Parse(in.cfg.StatusURL)
	if err != nil {
		return in.cfg.StatusURL + "?code=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// DeletionStatus returns the audit row for a confirmation code.
func (in *Ingestor) DeletionStatus(ctx context.Context, code string) (*Event, error) {
	return in.repo.GetByCode(ctx, code)
}
