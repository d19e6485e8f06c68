package webhook

import (
	"context"
	"fmt"

	"github.com/utafrali/tenantgate/internal/credential"
	pkgkafka "github.com/utafrali/tenantgate/pkg/kafka"
	"github.com/utafrali/tenantgate/pkg/logger"
)

// Kafka topics for account lifecycle events.
const (
	TopicAccountRevoked = "tenantgate.account.revoked"
	TopicAccountDeleted = "tenantgate.account.deleted"
)

const (
	aggregateTypeAccount = "connected_account"
	sourceGateway        = "tenantgate"
)

// AccountEventData is the payload of revoked and deleted events.
type AccountEventData struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"provider_user_id"`
	WebhookEventID string `json:"webhook_event_id"`
	Affected       int64  `json:"affected"`
}

// EventPublisher sends events to a topic. *pkgkafka.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// publishAccountEvent announces a completed revoke or anonymize.
func publishAccountEvent(ctx context.Context, pub EventPublisher, kind Kind, provider credential.Provider, actorID, webhookEventID string, affected int64) error {
	topic := TopicAccountRevoked
	if kind == KindDataDeletion {
		topic = TopicAccountDeleted
	}

	event, err := pkgkafka.NewEvent(topic, string(provider)+":"+actorID, aggregateTypeAccount, sourceGateway, AccountEventData{
		Provider:       string(provider),
		ProviderUserID: actorID,
		WebhookEventID: webhookEventID,
		Affected:       affected,
	})
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := pub.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
