package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/middleware"
	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/service"
	"github.com/capitalize-ai/localchat/internal/session"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// AuthHandler handles account and session endpoints.
type AuthHandler struct {
	service  *service.AuthService
	sessions *session.Manager
	logger   *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *service.AuthService, sessions *session.Manager, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:  svc,
		sessions: sessions,
		logger:   log,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.service.Register(r.Context(), &creds)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	msg := "registration successful, awaiting admin approval"
	if user.IsApproved {
		msg = "registration successful"
	}
	writeJSON(w, http.StatusCreated, &model.AuthResponse{
		Success: true,
		Message: msg,
		User:    user,
	})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	user, err := h.service.Login(r.Context(), &creds)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	if err := h.sessions.Issue(w, &session.Session{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}); err != nil {
		writeServiceError(w, r, h.logger, model.Internal("failed to issue session", err))
		return
	}

	writeJSON(w, http.StatusOK, &model.AuthResponse{
		Success: true,
		Message: "login successful",
		User:    user,
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	writeJSON(w, http.StatusOK, &model.StatusResponse{
		Success: true,
		Message: "logged out",
	})
}

// Check handles GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !middleware.HasSession(ctx) {
		writeJSON(w, http.StatusOK, &model.AuthCheckResponse{Authenticated: false})
		return
	}

	user, err := h.service.User(ctx, middleware.GetUserID(ctx))
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			h.sessions.Clear(w)
			writeJSON(w, http.StatusOK, &model.AuthCheckResponse{Authenticated: false})
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	isAdmin := user.IsAdmin
	writeJSON(w, http.StatusOK, &model.AuthCheckResponse{
		Authenticated: true,
		User:          user,
		IsAdmin:       &isAdmin,
	})
}

// ListUsers handles GET /api/auth/users
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.ListUsersResponse{
		Success: true,
		Users:   users,
	})
}

// Approve handles GET|POST /api/auth/users/{id}/approve
func (h *AuthHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Approve(ctx, middleware.GetUserID(ctx), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.AuthResponse{
		Success: true,
		Message: "user " + user.Username + " approved",
		User:    user,
	})
}

// Reject handles GET|POST /api/auth/users/{id}/reject
func (h *AuthHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Reject(ctx, middleware.GetUserID(ctx), userID)
	if err != nil {
		if model.IsKind(err, model.KindForbidden) {
			h.logger.Warn("admin account rejection refused",
				zap.String("user_id", userID),
				zap.String("admin_id", middleware.GetUserID(ctx)),
			)
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, &model.StatusResponse{
		Success: true,
		Message: "user " + user.Username + " rejected and removed",
	})
}
