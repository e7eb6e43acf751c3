// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/internal/session"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// SessionKey is the context key for the current session.
	SessionKey ContextKey = "session"
)

// UserLookup resolves the user behind a session cookie.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Session loads the session cookie, if any, into the request context. A cookie
// whose user no longer exists is cleared. It never rejects a request.
func Session(sessions *session.Manager, users UserLookup, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Read(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetUserByID(r.Context(), sess.UserID)
			switch {
			case model.IsKind(err, model.KindNotFound):
				sessions.Clear(w)
				next.ServeHTTP(w, r)
				return
			case err != nil:
				log.Error("failed to load session user", zap.String("user_id", sess.UserID), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			// The stored flags win over what the cookie was issued with.
			sess.Username = user.Username
			sess.IsAdmin = user.IsAdmin

			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the session loaded by Session, or nil.
func GetSession(ctx context.Context) *session.Session {
	if v, ok := ctx.Value(SessionKey).(*session.Session); ok {
		return v
	}
	return nil
}

// GetUserID gets the session user ID from context.
func GetUserID(ctx context.Context) string {
	if s := GetSession(ctx); s != nil {
		return s.UserID
	}
	return ""
}

// HasSession reports whether the request is authenticated.
func HasSession(ctx context.Context) bool {
	return GetSession(ctx) != nil
}

// IsAdmin reports whether the request is authenticated as an admin.
func IsAdmin(ctx context.Context) bool {
	s := GetSession(ctx)
	return s != nil && s.IsAdmin
}

// RequireSession rejects requests without a session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !HasSession(r.Context()) {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose session is not an admin. Compose it
// after RequireSession.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes the {success:false, message} body used across the API.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&model.StatusResponse{Success: false, Message: message})
}
