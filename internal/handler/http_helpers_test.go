package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "reading-bridge/pkg/errors"

	"github.com/tidwall/gjson"
)

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, http.StatusTeapot, "nope")

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content type application/json, got %s", ct)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"error":"nope"}` {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"parse", apperrors.NewParseError("bad locator", nil), http.StatusBadRequest, "parse"},
		{"missing context", apperrors.NewMissingContextError("no document"), http.StatusUnprocessableEntity, "missing_context"},
		{"not found", apperrors.NewNotFoundError("session not found"), http.StatusNotFound, "not_found"},
		{"engine unavailable", apperrors.NewEngineUnavailableError("cannot open", nil), http.StatusServiceUnavailable, "engine_unavailable"},
		{"foreign error", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeAppError(rr, NewMockHandlerLogger(), tt.err)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			body := rr.Body.Bytes()
			if got := gjson.GetBytes(body, "type").String(); got != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, got)
			}
			if gjson.GetBytes(body, "error").String() != tt.err.Error() {
				t.Fatalf("unexpected response body: %s", body)
			}
		})
	}
}
