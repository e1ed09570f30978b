package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coursedeck/backend/internal/auth"
	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/catalog"
	"github.com/coursedeck/backend/internal/logging"
	"github.com/coursedeck/backend/internal/repositories"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	StatusCode int      `json:"statusCode"`
	Data       any      `json:"data,omitempty"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors,omitempty"`
}

// respondData writes a success envelope.
func respondData(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	writeEnvelope(ctx, w, envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    true,
	})
}

// respondError writes an error envelope with a caller-safe message.
func respondError(ctx context.Context, w http.ResponseWriter, status int, message string, errs ...string) {
	if errs == nil {
		errs = []string{}
	}
	writeEnvelope(ctx, w, envelope{
		StatusCode: status,
		Message:    message,
		Success:    false,
		Errors:     errs,
	})
}

// respondFailure maps a domain error onto the taxonomy. Unrecognized errors
// default to Internal with a generic message; storage detail never reaches
// the caller.
func respondFailure(ctx context.Context, w http.ResponseWriter, err error) {
	logger := logging.FromContext(ctx)

	switch {
	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrIdentityNotFound),
		errors.Is(err, auth.ErrTokenMismatch):
		logger.Warn("request unauthorized", "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, catalog.ErrNotOwner):
		logger.Warn("request forbidden", "error", err)
		respondError(ctx, w, http.StatusForbidden, "you do not own this resource")
	case errors.Is(err, repositories.ErrConflict):
		logger.Warn("request conflict", "error", err)
		respondError(ctx, w, http.StatusConflict, "resource already exists")
	case errors.Is(err, repositories.ErrNotFound):
		logger.Warn("resource not found", "error", err)
		respondError(ctx, w, http.StatusNotFound, "resource not found")
	case errors.Is(err, blobstore.ErrUnavailable):
		logger.Error("blob store unavailable", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "media storage temporarily unavailable")
	default:
		logger.Error("request failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "something went wrong")
	}
}

func writeEnvelope(ctx context.Context, w http.ResponseWriter, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", env.StatusCode, "error", err)
	}
}
