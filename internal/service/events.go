package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// EventPublisher receives activity events. It is satisfied by the NATS
// publisher; a nil EventPublisher disables the feed.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ConversationEvent) error
}

// publish never fails the caller: the feed is best effort.
func publish(ctx context.Context, events EventPublisher, log *logger.Logger, event *model.ConversationEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		log.Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
