package intents

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

// ProcessMessage is the payload the worker consumes to drive an intent.
type ProcessMessage struct {
	IntentID string `json:"intent_id"`
}

// Publisher enqueues process triggers for the settlement worker.
type Publisher interface {
	PublishProcess(ctx context.Context, intentID uuid.UUID) error
}

type pubsubPublisher struct {
	publisher *pubsub.Publisher
}

// NewPublisher wraps a Pub/Sub publisher for intent process messages.
func NewPublisher(publisher *pubsub.Publisher) (Publisher, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &pubsubPublisher{publisher: publisher}, nil
}

func (p *pubsubPublisher) PublishProcess(ctx context.Context, intentID uuid.UUID) error {
	data, err := json.Marshal(ProcessMessage{IntentID: intentID.String()})
	if err != nil {
		return err
	}
	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing process message: %w", err)
	}
	return nil
}
