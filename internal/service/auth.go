package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/store"
	"github.com/capitalize-ai/localchat/pkg/logger"
	"github.com/capitalize-ai/localchat/pkg/metrics"
)

// AuthService handles registration, login and the admin approval workflow.
type AuthService struct {
	store      *store.Store
	events     EventPublisher
	logger     *logger.Logger
	bcryptCost int
}

// NewAuthService creates a new auth service. events may be nil.
func NewAuthService(st *store.Store, events EventPublisher, log *logger.Logger) *AuthService {
	return &AuthService{
		store:      st,
		events:     events,
		logger:     log,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates an account. The first account ever registered is an
// approved admin; every later one waits for approval.
func (s *AuthService) Register(ctx context.Context, creds *model.Credentials) (*model.User, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		return nil, model.Validation("username and password are required")
	}
	if len(creds.Password) < model.MinPasswordLength {
		return nil, model.Validation(fmt.Sprintf("password must be at least %d characters", model.MinPasswordLength))
	}
	// bcrypt only reads the first 72 bytes.
	if len(creds.Password) > 72 {
		return nil, model.Validation("password must be at most 72 bytes")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.bcryptCost)
	if err != nil {
		return nil, model.Internal("failed to hash password", err)
	}

	user, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		return nil, err
	}

	metrics.UsersRegisteredTotal.Inc()
	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.Bool("is_admin", user.IsAdmin),
		zap.Bool("is_approved", user.IsApproved),
	)
	publish(ctx, s.events, s.logger, &model.ConversationEvent{
		Type:   model.EventTypeUserRegistered,
		UserID: user.ID,
	})

	return user, nil
}

// Login verifies credentials. Unapproved accounts are refused with Forbidden.
func (s *AuthService) Login(ctx context.Context, creds *model.Credentials) (*model.User, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		return nil, model.Validation("username and password are required")
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			return nil, model.Unauthorized("invalid username or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, model.Unauthorized("invalid username or password")
		}
		return nil, model.Internal("failed to verify password", err)
	}

	if !user.IsApproved {
		return nil, model.Forbidden("account is pending admin approval")
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return user, nil
}

// User returns the current profile of a session's user.
func (s *AuthService) User(ctx context.Context, userID string) (*model.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// Approve lets a pending user log in.
func (s *AuthService) Approve(ctx context.Context, adminID, userID string) (*model.User, error) {
	user, err := s.store.ApproveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user approved",
		zap.String("user_id", user.ID),
		zap.String("admin_id", adminID),
	)
	publish(ctx, s.events, s.logger, &model.ConversationEvent{
		Type:     model.EventTypeUserApproved,
		UserID:   user.ID,
		Metadata: map[string]any{"admin_id": adminID},
	})
	return user, nil
}

// Reject deletes a non-admin user along with their conversations.
func (s *AuthService) Reject(ctx context.Context, adminID, userID string) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin {
		return nil, model.Forbidden("cannot reject an admin account")
	}

	if err := s.store.DeleteUser(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Info("user rejected",
		zap.String("user_id", user.ID),
		zap.String("admin_id", adminID),
	)
	publish(ctx, s.events, s.logger, &model.ConversationEvent{
		Type:     model.EventTypeUserRejected,
		UserID:   user.ID,
		Metadata: map[string]any{"admin_id": adminID},
	})
	return user, nil
}
