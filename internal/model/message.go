package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r may be stored on a Message.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Metrics holds derived generation timings. Each field is present only when
// its source duration was positive.
type Metrics struct {
	TokensPerSecond         *float64 `json:"tokens_per_second,omitempty"`
	GenerationTimeSec       *float64 `json:"generation_time_sec,omitempty"`
	PromptProcessingTimeSec *float64 `json:"prompt_processing_time_sec,omitempty"`
	LoadTimeSec             *float64 `json:"load_time_sec,omitempty"`
}

// Empty reports whether no metric qualified.
func (m *Metrics) Empty() bool {
	return m == nil ||
		m.TokensPerSecond == nil &&
			m.GenerationTimeSec == nil &&
			m.PromptProcessingTimeSec == nil &&
			m.LoadTimeSec == nil
}

// Message represents a conversation message. Messages are never updated
// after creation.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	Role           Role      `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Image          *string   `gorm:"type:text" json:"image,omitempty"`
	Metrics        *Metrics  `gorm:"serializer:json" json:"metrics,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// ChatMessage is one entry of the message list forwarded to the model.
type ChatMessage struct {
	Role    string   `json:"role" validate:"required,oneof=system user assistant"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model          string        `json:"model" validate:"required"`
	Messages       []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	ConversationID *string       `json:"conversation_id,omitempty"`
	UserMessage    string        `json:"user_message,omitempty"`
	Image          *string       `json:"image,omitempty"`
	Stream         *bool         `json:"stream,omitempty"`
}

// Streaming reports whether the caller wants the NDJSON relay (the default).
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ChatResponse is the buffered (stream:false) chat reply.
type ChatResponse struct {
	Success bool   `json:"success"`
	Stream  bool   `json:"stream"`
	Message string `json:"message"`
}

// SaveMessageRequest persists a completed assistant turn.
type SaveMessageRequest struct {
	ConversationID string   `json:"conversation_id" validate:"required,uuid"`
	Content        string   `json:"content"`
	Metrics        *Metrics `json:"metrics,omitempty"`
	Model          string   `json:"model"`
}

// SaveMessageResponse is returned after an assistant message is stored.
type SaveMessageResponse struct {
	Success bool     `json:"success"`
	Message *Message `json:"message"`
}

// ModelRequest names a model for pull and delete.
type ModelRequest struct {
	Model string `json:"model" validate:"required"`
}
