package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/capitalize-ai/localchat/internal/middleware"
	"github.com/capitalize-ai/localchat/internal/model"
	"github.com/capitalize-ai/localchat/pkg/logger"
)

// maxBodyBytes bounds request bodies. Chat bodies carry base64 images.
const maxBodyBytes = 32 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &model.StatusResponse{
		Success: false,
		Message: message,
	})
}

// writeServiceError converts a service error into its HTTP status. Errors
// without a kind are logged and reported as internal.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var merr *model.Error
	if errors.As(err, &merr) && merr.Kind != model.KindInternal {
		writeError(w, merr.Status(), merr.Message)
		return
	}

	log.WithContext(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context())).
		Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return model.Validation("invalid request body")
	}
	return nil
}
