package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/localchat/internal/model"
)

const (
	// StreamName is the name of the chat activity stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all chat activity subjects.
	SubjectPrefix = "chat"
)

// Publisher writes conversation events to JetStream.
type Publisher struct {
	client *Client
}

// NewPublisher creates a new publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the activity stream if it does not exist.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Chat activity: conversations, saved messages, generations and account changes",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event, e.g. chat.<user>.message.saved.
func EventSubject(userID string, eventType model.EventType) string {
	if userID == "" {
		userID = "anonymous"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, userID, eventType)
}

// Publish fills in the event id and timestamp when missing and publishes it.
func (p *Publisher) Publish(ctx context.Context, event *model.ConversationEvent) error {
	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(event.UserID, event.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
