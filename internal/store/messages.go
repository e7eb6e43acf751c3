package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/capitalize-ai/localchat/internal/model"
)

// AppendMessage stores msg in a conversation owned by userID and bumps the
// conversation's updated_at. For assistant messages with a non-empty
// modelName the conversation's model_used is recorded as well.
func (s *Store) AppendMessage(ctx context.Context, userID string, msg *model.Message, modelName string) error {
	if !msg.Role.Valid() {
		return model.Validation(fmt.Sprintf("invalid role %q", msg.Role))
	}

	now := s.timestamp()
	msg.ID = uuid.Must(uuid.NewV7()).String()
	msg.CreatedAt = now
	if msg.Metrics.Empty() {
		msg.Metrics = nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := getOwned(tx, userID, msg.ConversationID)
		if err != nil {
			return err
		}

		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("append message: %w", err)
		}

		updates := map[string]any{"updated_at": now}
		if msg.Role == model.RoleAssistant && modelName != "" {
			updates["model_used"] = modelName
		}
		if err := tx.Model(conv).Updates(updates).Error; err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs := []model.Message{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
