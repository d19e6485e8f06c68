package webhook

import (
	"fmt"
	"time"

	"github.com/utafrali/tenantgate/internal/credential"
)

// Kind is a provider callback type.
type Kind string

const (
	KindDeauthorize  Kind = "deauthorize"
	KindDataDeletion Kind = "data_deletion"
)

// ParseKind validates s.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDeauthorize, KindDataDeletion:
		return k, nil
	}
	return "", fmt.Errorf("unknown callback kind %q", s)
}

// Status tracks the processing of an audit row.
type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Event is one row of the webhook audit log. Rows are never deleted; only
// the processing columns change after the side effect runs.
type Event struct {
	ID                string
	Provider          credential.Provider
	EventType         string
	ActorID           *string
	Payload           map[string]any
	SignatureVerified bool
	ConfirmationCode  string
	Status            Status
	ProcessingError   *string
	ReceivedAt        time.Time
	ProcessedAt       *time.Time
}

// EventType formats the audit event type, e.g. "facebook.deauthorize".
func EventType(p credential.Provider, k Kind) string {
	return string(p) + "." + string(k)
}
