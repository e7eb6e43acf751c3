package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/llm"
	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/relay"
	"github.com/capitalize-ai/localchat/pkg/logger"
	"github.com/capitalize-ai/localchat/pkg/metrics"
)

// ChatService runs chat turns against the inference daemon and persists the
// messages exchanged.
type ChatService struct {
	llmClient     llm.Client
	conversations *ConversationService
	events        EventPublisher
	logger        *logger.Logger
}

// NewChatService creates a new chat service. events may be nil.
func NewChatService(
	llmClient llm.Client,
	conversations *ConversationService,
	events EventPublisher,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		llmClient:     llmClient,
		conversations: conversations,
		events:        events,
		logger:        log,
	}
}

// Stream runs one streamed chat turn. An error is returned only when the turn
// is refused before anything was emitted; once the relay starts every failure
// is reported as an event through emit.
func (s *ChatService) Stream(ctx context.Context, userID string, req *model.ChatRequest, emit relay.Emitter) (*relay.Outcome, error) {
	if err := s.prepare(ctx, userID, req); err != nil {
		return nil, err
	}

	metrics.IncrementActiveStreams()
	defer metrics.DecrementActiveStreams()

	start := time.Now()
	res := s.llmClient.Chat(ctx, &llm.ChatRequest{
		Model:    req.Model,
		Messages: toLLMMessages(req.Messages),
		Stream:   true,
	})

	out := relay.Run(ctx, res, relay.Meta{ConversationID: req.ConversationID, Model: req.Model}, emit)

	duration := time.Since(start)
	var tps float64
	if out.Metrics.TokensPerSecond != nil {
		tps = *out.Metrics.TokensPerSecond
	}
	metrics.RecordChatStream(req.Model, out.Status(), duration.Seconds(), out.Chunks, tps)

	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("conversation_id", deref(req.ConversationID)),
		zap.String("model", req.Model),
		zap.String("status", out.Status()),
		zap.Int("chunks", out.Chunks),
		zap.Int("content_length", len(out.FullContent)),
		zap.Duration("duration", duration),
	}
	if out.Completed {
		s.logger.Info("chat stream completed", fields...)
		publish(ctx, s.events, s.logger, &model.ConversationEvent{
			Type:           model.EventTypeGenerationCompleted,
			UserID:         userID,
			ConversationID: deref(req.ConversationID),
			Metadata:       generationMetadata(req.Model, out),
		})
	} else {
		s.logger.Warn("chat stream ended early", append(fields, zap.Error(out.Err))...)
		reason := out.Status()
		if out.Err != nil {
			reason = out.Err.Error()
		}
		// ctx may already be cancelled by the client going away.
		publish(context.WithoutCancel(ctx), s.events, s.logger, &model.ConversationEvent{
			Type:           model.EventTypeGenerationFailed,
			UserID:         userID,
			ConversationID: deref(req.ConversationID),
			Reason:         reason,
			Metadata:       generationMetadata(req.Model, out),
		})
	}

	return out, nil
}

// Complete runs one buffered chat turn and returns the assistant's reply.
func (s *ChatService) Complete(ctx context.Context, userID string, req *model.ChatRequest) (string, error) {
	if err := s.prepare(ctx, userID, req); err != nil {
		return "", err
	}

	res := s.llmClient.Chat(ctx, &llm.ChatRequest{
		Model:    req.Model,
		Messages: toLLMMessages(req.Messages),
		Stream:   false,
	})
	if !res.Success {
		s.logger.Warn("buffered chat failed",
			zap.String("user_id", userID),
			zap.String("model", req.Model),
			zap.String("message", res.Message),
		)
		return "", model.UpstreamUnavailable(res.Message)
	}
	return res.Content, nil
}

// prepare validates the request and, when it names a conversation, stores the
// user's message and records the model before the daemon is called.
func (s *ChatService) prepare(ctx context.Context, userID string, req *model.ChatRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return model.Validation("model is required")
	}
	if len(req.Messages) == 0 {
		return model.Validation("messages are required")
	}

	conversationID := deref(req.ConversationID)
	if conversationID == "" {
		return nil
	}

	if strings.TrimSpace(req.UserMessage) != "" {
		msg := &model.Message{
			ConversationID: conversationID,
			Role:           model.RoleUser,
			Content:        req.UserMessage,
			Image:          req.Image,
		}
		if err := s.conversations.AppendMessage(ctx, userID, msg, ""); err != nil {
			return err
		}
	}

	return s.conversations.RecordModel(ctx, userID, conversationID, req.Model)
}

// SaveAssistantMessage persists a completed assistant turn.
func (s *ChatService) SaveAssistantMessage(ctx context.Context, userID string, req *model.SaveMessageRequest) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: req.ConversationID,
		Role:           model.RoleAssistant,
		Content:        req.Content,
		Metrics:        req.Metrics,
	}
	if err := s.conversations.AppendMessage(ctx, userID, msg, req.Model); err != nil {
		return nil, err
	}

	publish(ctx, s.events, s.logger, &model.ConversationEvent{
		Type:           model.EventTypeMessageSaved,
		UserID:         userID,
		ConversationID: msg.ConversationID,
		Metadata:       map[string]any{"message_id": msg.ID, "model": req.Model},
	})
	return msg, nil
}

// Health reports daemon connectivity.
func (s *ChatService) Health(ctx context.Context) *llm.HealthResult {
	return s.llmClient.CheckConnection(ctx)
}

// ListModels returns the installed models.
func (s *ChatService) ListModels(ctx context.Context) *llm.ModelsResult {
	return s.llmClient.ListModels(ctx)
}

// PullModel downloads a model.
func (s *ChatService) PullModel(ctx context.Context, name string) (*llm.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Validation("model name is required")
	}
	return s.llmClient.PullModel(ctx, name), nil
}

// DeleteModel removes an installed model.
func (s *ChatService) DeleteModel(ctx context.Context, name string) (*llm.Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Validation("model name is required")
	}
	return s.llmClient.DeleteModel(ctx, name), nil
}

func toLLMMessages(msgs []model.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = llm.ChatMessage{Role: m.Role, Content: m.Content, Images: m.Images}
	}
	return out
}

func generationMetadata(modelName string, out *relay.Outcome) map[string]any {
	md := map[string]any{
		"model":  modelName,
		"chunks": out.Chunks,
	}
	if out.Metrics.TokensPerSecond != nil {
		md["tokens_per_second"] = *out.Metrics.TokensPerSecond
	}
	return md
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
