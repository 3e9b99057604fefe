// Package handler exposes reader sessions over HTTP.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"reading-bridge/internal/codec"
	"reading-bridge/internal/domain"
	"reading-bridge/internal/service"
	apperrors "reading-bridge/pkg/errors"

	"github.com/gorilla/mux"
)

const maxRequestBody = 1 << 20

// SessionHandler handles reader session HTTP requests. Every session gets an
// event feed carrying its outbound notifications.
type SessionHandler struct {
	sessions  domain.SessionManager
	logger    domain.Logger
	feedLimit int

	mu    sync.RWMutex
	feeds map[string]*EventFeed
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions domain.SessionManager, logger domain.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		logger:    logger,
		feedLimit: defaultFeedLimit,
		feeds:     make(map[string]*EventFeed),
	}
}

type openSessionRequest struct {
	Path       string          `json:"path"`
	BookID     string          `json:"bookId"`
	Location   json.RawMessage `json:"location,omitempty"`
	Highlights json.RawMessage `json:"highlights,omitempty"`
}

type openSessionResponse struct {
	SessionID    string          `json:"sessionId"`
	BookID       string          `json:"bookId"`
	Layout       string          `json:"layout"`
	TOC          json.RawMessage `json:"toc"`
	Capabilities []string        `json:"capabilities"`
}

type createHighlightRequest struct {
	Selection json.RawMessage `json:"selection"`
	Color     *int            `json:"color,omitempty"`
}

type paletteRequest struct {
	Colors []int `json:"colors"`
}

type highlightActionRequest struct {
	Token  uint64 `json:"token"`
	Action string `json:"action"`
	Color  *int   `json:"color,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
}

// OpenSession handles POST /sessions
func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeAppError(w, h.logger, apperrors.NewValidationError("path is required"))
		return
	}

	token, _ := GetTokenFromContext(r)
	feed := NewEventFeed(h.feedLimit, h.logger)
	session, err := h.sessions.Open(r.Context(), domain.OpenRequest{
		Path:       req.Path,
		BookID:     req.BookID,
		Location:   req.Location,
		Highlights: req.Highlights,
		Token:      token,
	}, feed)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	h.mu.Lock()
	h.feeds[session.ID()] = feed
	h.mu.Unlock()

	toc, err := codec.EncodeLinks(session.TableOfContents())
	if err != nil {
		writeAppError(w, h.logger, apperrors.NewInternalError("failed to encode table of contents", err))
		return
	}
	status := session.Status()
	writeJSON(w, http.StatusCreated, openSessionResponse{
		SessionID:    session.ID(),
		BookID:       status.BookID,
		Layout:       status.Layout,
		TOC:          toc,
		Capabilities: status.Capabilities,
	})
}

// GetSession handles GET /sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Status())
}

// CloseSession handles DELETE /sessions/{id}
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.sessions.Close(id)
	if err != nil && !service.IsSessionGone(err) {
		writeAppError(w, h.logger, err)
		return
	}

	h.mu.Lock()
	_, known := h.feeds[id]
	delete(h.feeds, id)
	h.mu.Unlock()

	if err != nil && !known {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetLocation handles PUT /sessions/{id}/location. The body is a raw Locator
// or Link.
func (h *SessionHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := session.SetDesiredPosition(r.Context(), body); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHighlights handles GET /sessions/{id}/highlights
func (h *SessionHandler) ListHighlights(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	highlights := session.Status().Highlights
	if highlights == nil {
		highlights = make([]domain.Highlight, 0)
	}
	writeJSON(w, http.StatusOK, highlights)
}

// CreateHighlight handles POST /sessions/{id}/highlights
func (h *SessionHandler) CreateHighlight(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req createHighlightRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := session.RequestHighlightCreate(req.Selection, colorPtr(req.Color))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// DeleteHighlight handles DELETE /sessions/{id}/highlights/{highlightId}
func (h *SessionHandler) DeleteHighlight(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.RequestHighlightDelete(mux.Vars(r)["highlightId"]); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPalette handles PUT /sessions/{id}/palette
func (h *SessionHandler) SetPalette(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req paletteRequest
	if !h.decode(w, r, &req) {
		return
	}

	colors := make([]domain.HighlightColor, 0, len(req.Colors))
	for _, c := range req.Colors {
		colors = append(colors, domain.HighlightColor(c))
	}
	if err := session.SetHighlightColorPalette(colors); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateDecoration handles POST /sessions/{id}/decorations/{decorationId}/activate.
// The resulting action menu is delivered on the event feed.
func (h *SessionHandler) ActivateDecoration(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.ActivateDecoration(mux.Vars(r)["decorationId"]); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResolveHighlightAction handles POST /sessions/{id}/highlight-actions
func (h *SessionHandler) ResolveHighlightAction(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req highlightActionRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := session.ResolveHighlightAction(req.Token, domain.HighlightAction(req.Action), colorPtr(req.Color))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitSearch handles POST /sessions/{id}/search. Results arrive on the
// event feed.
func (h *SessionHandler) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := session.SubmitSearchQuery(req.Query); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// NextSearchPage handles POST /sessions/{id}/search/next
func (h *SessionHandler) NextSearchPage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.RequestMoreSearchResults(); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CancelSearch handles DELETE /sessions/{id}/search
func (h *SessionHandler) CancelSearch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.CancelSearch(); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events handles GET /sessions/{id}/events?after=N
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.mu.RLock()
	feed, ok := h.feeds[id]
	h.mu.RUnlock()
	if !ok {
		writeAppError(w, h.logger, apperrors.NewNotFoundError("session not found"))
		return
	}

	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeAppError(w, h.logger, apperrors.NewValidationError("invalid after parameter", raw))
			return
		}
		after = parsed
	}

	writeJSON(w, http.StatusOK, feed.After(after))
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (domain.ReaderSession, bool) {
	session, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeAppError(w, h.logger, err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func colorPtr(v *int) *domain.HighlightColor {
	if v == nil {
		return nil
	}
	c := domain.HighlightColor(*v)
	return &c
}
