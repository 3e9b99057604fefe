package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

type contextKey string

const tokenContextKey contextKey = "token"

// GetTokenFromContext extracts the caller's bearer token from request context
func GetTokenFromContext(r *http.Request) (string, bool) {
	token, ok := r.Context().Value(tokenContextKey).(string)
	return token, ok && token != ""
}

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (helper function)
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeAppError maps err onto its HTTP status. The body carries the error
// kind so hosts can branch on it.
func writeAppError(w http.ResponseWriter, logger domain.Logger, err error) {
	status := apperrors.GetStatusCode(err)
	body := map[string]string{
		"error": err.Error(),
		"type":  string(apperrors.Kind(err)),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", err, "status", status)
	} else {
		logger.Debug("Request rejected", "status", status, "error", err.Error())
	}
	writeJSON(w, status, body)
}
