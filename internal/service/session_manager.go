package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"reading-bridge/internal/codec"
	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"

	"github.com/google/uuid"
)

// StoreFactory builds the highlight store of a new session seeded with the
// initial highlights.
type StoreFactory func(initial []domain.Highlight) domain.HighlightStore

// SessionManager opens documents through the rendering engine and tracks the
// resulting reader sessions.
type SessionManager struct {
	engine   domain.RenderingEngine
	repo     domain.HighlightRepository
	newStore StoreFactory
	debounce time.Duration
	logger   domain.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*ReaderSession
}

// NewSessionManager creates a session manager. repo may be nil when no
// persistence collaborator is configured.
func NewSessionManager(
	engine domain.RenderingEngine,
	repo domain.HighlightRepository,
	newStore StoreFactory,
	debounce time.Duration,
	logger domain.Logger,
) *SessionManager {
	return &SessionManager{
		engine:   engine,
		repo:     repo,
		newStore: newStore,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*ReaderSession),
	}
}

// Open opens the requested document and starts a session around it. Engine
// failures are reported once as engine_unavailable; nothing is retried.
func (m *SessionManager) Open(ctx context.Context, req domain.OpenRequest, listener domain.SessionListener) (domain.ReaderSession, error) {
	doc, err := m.engine.Open(ctx, domain.DocumentRef{Path: req.Path, BookID: req.BookID})
	if err != nil {
		m.logger.Error("Failed to open document", err, "path", req.Path)
		if apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable) {
			return nil, err
		}
		return nil, apperrors.NewEngineUnavailableError("failed to open document", err)
	}
	bookID := doc.BookID()

	if listener == nil {
		listener = domain.NopSessionListener{}
	}
	targets := MultiListener{listener}
	if m.repo != nil {
		targets = append(targets, newPersistingListener(m.repo, req.Token, m.logger))
	}

	session := &ReaderSession{
		id:       uuid.New().String(),
		doc:      doc,
		store:    m.newStore(m.initialHighlights(req, bookID)),
		events:   newEventQueue(targets),
		logger:   m.logger,
		now:      m.now,
		onClosed: m.forget,
		palette:  append([]domain.HighlightColor{}, domain.DefaultPalette...),
	}

	session.bridge = NewLocationBridge(doc, session.events, m.logger)
	session.bridge.Attach()

	if decorator, ok := doc.(domain.Decorator); ok {
		session.decor = NewDecorationSynchronizer(bookID, session.store, decorator, session.events, session, m.logger)
		session.decor.Start()
	}
	if searchable, ok := doc.(domain.Searchable); ok {
		session.search = NewSearchSession(searchable, session.events, m.debounce, m.logger)
	}

	var toc []domain.Link
	if entries := doc.TableOfContents(); len(entries) > 0 {
		toc = entries
	}
	session.events.OnTableOfContents(toc)

	if err := session.SetDesiredPosition(ctx, req.Location); err != nil {
		m.logger.Warn("Initial position not applied", "book_id", bookID, "reason", err.Error())
	}

	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()

	m.logger.Info("Session opened", "session_id", session.id, "book_id", bookID, "layout", doc.Layout())
	return session, nil
}

// Get returns the session with the given id.
func (m *SessionManager) Get(id string) (domain.ReaderSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return session, nil
}

// Close tears down the session with the given id.
func (m *SessionManager) Close(id string) error {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return sessionNotFound(id)
	}
	session.Teardown()
	return nil
}

// CloseAll tears down every open session.
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	sessions := make([]*ReaderSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.Teardown()
	}
}

func (m *SessionManager) forget(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// initialHighlights decodes the host-supplied highlights. When the host
// supplies none and a repository is configured, the persisted set is loaded.
// Highlights of other books are dropped; missing book ids are filled in.
func (m *SessionManager) initialHighlights(req domain.OpenRequest, bookID string) []domain.Highlight {
	var decoded []domain.Highlight
	if !codec.IsAbsent(req.Highlights) {
		highlights, err := codec.DecodeHighlights(req.Highlights, m.now())
		if err != nil {
			m.logger.Warn("Skipped unreadable initial highlights", "book_id", bookID, "reason", err.Error())
		}
		decoded = highlights
	} else if m.repo != nil {
		persisted, err := m.repo.ListByBook(bookID, req.Token)
		if err != nil {
			m.logger.Warn("Failed to load persisted highlights", "book_id", bookID, "reason", err.Error())
		}
		for _, h := range persisted {
			decoded = append(decoded, *h)
		}
	}

	out := make([]domain.Highlight, 0, len(decoded))
	for _, h := range decoded {
		if h.BookID == "" {
			h.BookID = bookID
		}
		if h.BookID != bookID {
			m.logger.Warn("Skipping highlight of another book", "highlight_id", h.ID, "book_id", h.BookID)
			continue
		}
		out = append(out, h)
	}
	return out
}

func sessionNotFound(id string) error {
	err := apperrors.NewNotFoundError("session not found")
	err.Details = id
	err.Cause = domain.ErrSessionNotFound
	return err
}

// IsSessionGone reports whether err means the session no longer exists.
func IsSessionGone(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionClosed)
}
