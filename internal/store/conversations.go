package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/capitalize-ai/localchat/internal/model"
)

const conversationNotFound = "conversation not found"

// ListConversations returns the user's non-deleted conversations, most
// recently updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	convs := []model.Conversation{}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Order("updated_at desc, id desc").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// CreateConversation inserts an empty conversation.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	now := s.timestamp()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns a conversation owned by userID. Missing, deleted and
// foreign conversations are all reported as not found.
func (s *Store) GetConversation(ctx context.Context, userID, id string) (*model.Conversation, error) {
	return getOwned(s.db.WithContext(ctx), userID, id)
}

func getOwned(db *gorm.DB, userID, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := db.Where("id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).First(&conv).Error
	if err != nil {
		return nil, notFound(err, conversationNotFound)
	}
	return &conv, nil
}

// SoftDeleteConversation flags a conversation deleted. Deleting an already
// deleted conversation succeeds.
func (s *Store) SoftDeleteConversation(ctx context.Context, userID, id string) error {
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_deleted", true)
	if res.Error != nil {
		return fmt.Errorf("delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NotFound(conversationNotFound)
	}
	return nil
}

// RenameConversation changes a conversation's title.
func (s *Store) RenameConversation(ctx context.Context, userID, id, title string) (*model.Conversation, error) {
	var conv *model.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if conv, err = getOwned(tx, userID, id); err != nil {
			return err
		}
		conv.Title = title
		return tx.Model(conv).Update("title", title).Error
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// TouchConversationModel records the model last used in a conversation.
func (s *Store) TouchConversationModel(ctx context.Context, userID, id, modelName string) error {
	now := s.timestamp()
	res := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).
		Updates(map[string]any{"model_used": modelName, "updated_at": now})
	if res.Error != nil {
		return fmt.Errorf("touch conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NotFound(conversationNotFound)
	}
	return nil
}
