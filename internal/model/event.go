package model

import (
	"time"
)

// ChunkEvent is emitted once per decoded upstream line.
type ChunkEvent struct {
	Success bool     `json:"success"`
	Chunk   string   `json:"chunk"`
	Done    bool     `json:"done"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

// SummaryEvent is the terminal event of a successful relay. It tells the
// client the assistant turn may now be saved.
type SummaryEvent struct {
	Success        bool    `json:"success"`
	Done           bool    `json:"done"`
	FullContent    string  `json:"full_content"`
	Metrics        Metrics `json:"metrics"`
	ConversationID *string `json:"conversation_id"`
	Model          string  `json:"model"`
}

// ErrorEvent ends a relay that failed to start or broke mid-stream.
type ErrorEvent struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// EventType represents the type of conversation event published to the feed.
type EventType string

const (
	EventTypeConversationCreated EventType = "conversation.created"
	EventTypeConversationDeleted EventType = "conversation.deleted"
	EventTypeMessageSaved        EventType = "message.saved"
	EventTypeGenerationCompleted EventType = "generation.completed"
	EventTypeGenerationFailed    EventType = "generation.failed"
	EventTypeUserRegistered      EventType = "user.registered"
	EventTypeUserApproved        EventType = "user.approved"
	EventTypeUserRejected        EventType = "user.rejected"
)

// ConversationEvent is an activity record published to the event feed.
type ConversationEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
