// Package model defines data structures for the chat service.
package model

import (
	"time"
)

// DefaultConversationTitle is used when a conversation is created without a title.
const DefaultConversationTitle = "New Conversation"

// Conversation represents a conversation thread owned by a single user.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	ModelUsed string    `gorm:"size:255" json:"model_used,omitempty"`
	IsDeleted bool      `gorm:"not null;default:false;index" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index" json:"updated_at"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title" validate:"omitempty,max=255"`
}

// RenameConversationRequest is the request to change a conversation title.
type RenameConversationRequest struct {
	Title string `json:"title" validate:"max=255"`
}

// ConversationResponse wraps a single conversation.
type ConversationResponse struct {
	Success      bool          `json:"success"`
	Conversation *Conversation `json:"conversation"`
	// Messages is nil when the history was not requested.
	Messages *[]Message `json:"messages,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Success       bool           `json:"success"`
	Conversations []Conversation `json:"conversations"`
}
