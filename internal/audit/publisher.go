package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// lifecycleMessage is the wire shape published to the lifecycle topic.
type lifecycleMessage struct {
	Type           string         `json:"type"`
	UserID         string         `json:"user_id"`
	SubscriptionID *string        `json:"subscription_id,omitempty"`
	IntentID       *string        `json:"intent_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// PubSubPublisher pushes lifecycle entries onto a Pub/Sub topic.
type PubSubPublisher struct {
	publisher *gcppubsub.Publisher
}

// NewPubSubPublisher wraps a Pub/Sub publisher handle.
func NewPubSubPublisher(publisher *gcppubsub.Publisher) (*PubSubPublisher, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	return &PubSubPublisher{publisher: publisher}, nil
}

// PublishLifecycle publishes the entry and waits for the server ack.
func (p *PubSubPublisher) PublishLifecycle(ctx context.Context, entry Entry) error {
	msg := lifecycleMessage{
		Type:       entry.Type.String(),
		UserID:     entry.UserID.String(),
		Metadata:   entry.Metadata,
		OccurredAt: time.Now().UTC(),
	}
	if entry.SubscriptionID != nil {
		id := entry.SubscriptionID.String()
		msg.SubscriptionID = &id
	}
	if entry.IntentID != nil {
		id := entry.IntentID.String()
		msg.IntentID = &id
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	result := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": entry.Type.String()},
	})
	_, err = result.Get(ctx)
	return err
}
