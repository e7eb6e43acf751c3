// Package service provides business logic for the chat application.
package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/store"
	"github.com/capitalize-ai/localchat/pkg/logger"
	"github.com/capitalize-ai/localchat/pkg/metrics"
)

// MaxTitleLength is the longest accepted conversation title, in characters.
const MaxTitleLength = 255

// ConversationService handles conversation operations. Every call is scoped
// to the calling user; other users' conversations are reported as not found.
type ConversationService struct {
	store  *store.Store
	events EventPublisher
	logger *logger.Logger
}

// NewConversationService creates a new conversation service. events may be nil.
func NewConversationService(st *store.Store, events EventPublisher, log *logger.Logger) *ConversationService {
	return &ConversationService{
		store:  st,
		events: events,
		logger: log,
	}
}

// List returns the user's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// Create creates a new empty conversation.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = model.DefaultConversationTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, model.Validation("title exceeds maximum length")
	}

	conv, err := s.store.CreateConversation(ctx, userID, title)
	if err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)
	publish(ctx, s.events, s.logger, &model.ConversationEvent{
		Type:           model.EventTypeConversationCreated,
		UserID:         userID,
		ConversationID: conv.ID,
	})

	return conv, nil
}

// Get retrieves a conversation and, when withMessages is set, its messages in
// creation order.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string, withMessages bool) (*model.Conversation, []model.Message, error) {
	conv, err := s.store.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !withMessages {
		return conv, nil, nil
	}

	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Delete soft-deletes a conversation. Repeating it succeeds.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if err := s.store.SoftDeleteConversation(ctx, userID, conversationID); err != nil {
		return err
	}

	s.logger.Info("conversation deleted",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
	)
	publish(ctx, s.events, s.logger, &model.ConversationEvent{
		Type:           model.EventTypeConversationDeleted,
		UserID:         userID,
		ConversationID: conversationID,
	})
	return nil
}

// Rename changes a conversation's title.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, model.Validation("title exceeds maximum length")
	}
	return s.store.RenameConversation(ctx, userID, conversationID, title)
}

// AppendMessage adds a message to a conversation and bumps its updated_at.
// Assistant messages also record modelName on the conversation.
func (s *ConversationService) AppendMessage(ctx context.Context, userID string, msg *model.Message, modelName string) error {
	if err := s.store.AppendMessage(ctx, userID, msg, modelName); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	return nil
}

// RecordModel notes the model last used in a conversation.
func (s *ConversationService) RecordModel(ctx context.Context, userID, conversationID, modelName string) error {
	return s.store.TouchConversationModel(ctx, userID, conversationID, modelName)
}
