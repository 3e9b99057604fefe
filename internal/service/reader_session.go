package service

import (
	"context"
	"sync"
	"time"

	"reading-bridge/internal/codec"
	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

// Session capabilities reported in SessionStatus.
const (
	CapabilityNavigation  = "navigation"
	CapabilityDecorations = "decorations"
	CapabilitySearch      = "search"
)

// ReaderSession composes the location bridge, highlight store, decoration
// synchronizer and search session around one open document.
type ReaderSession struct {
	id       string
	doc      domain.Document
	store    domain.HighlightStore
	events   *eventQueue
	bridge   *LocationBridge
	decor    *DecorationSynchronizer
	search   *SearchSession
	logger   domain.Logger
	now      func() time.Time
	onClosed func(id string)

	mu       sync.Mutex
	palette  []domain.HighlightColor
	closed   bool
	teardown sync.Once
}

func (s *ReaderSession) ID() string {
	return s.id
}

// Status returns a snapshot of the session.
func (s *ReaderSession) Status() domain.SessionStatus {
	s.mu.Lock()
	palette := append([]domain.HighlightColor{}, s.palette...)
	s.mu.Unlock()

	status := domain.SessionStatus{
		ID:              s.id,
		BookID:          s.doc.BookID(),
		Layout:          s.doc.Layout(),
		CurrentLocation: s.doc.CurrentLocation(),
		Highlights:      s.store.List(s.doc.BookID()),
		Palette:         palette,
		Capabilities:    s.capabilities(),
	}
	if s.search != nil {
		search := s.search.Status()
		status.Search = &search
	}
	return status
}

func (s *ReaderSession) TableOfContents() []domain.Link {
	return s.doc.TableOfContents()
}

// SetDesiredPosition navigates to the host's desired position unless it is
// already current or cannot be decoded.
func (s *ReaderSession) SetDesiredPosition(ctx context.Context, location []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.bridge.Apply(ctx, location)
	return err
}

// SetHighlightColorPalette restricts the colors offered to the user. An
// empty palette restores the full one.
func (s *ReaderSession) SetHighlightColorPalette(colors []domain.HighlightColor) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	palette := make([]domain.HighlightColor, 0, len(colors))
	seen := make(map[domain.HighlightColor]bool, len(colors))
	for _, c := range colors {
		if !c.Valid() {
			return apperrors.NewValidationError("invalid palette", "unknown color "+c.String())
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		palette = append(palette, c)
	}
	if len(palette) == 0 {
		palette = append(palette, domain.DefaultPalette...)
	}

	s.mu.Lock()
	s.palette = palette
	s.mu.Unlock()

	if s.decor != nil {
		s.decor.SetPalette(palette)
	}
	return nil
}

// RequestHighlightCreate creates a highlight over selection. Without an
// explicit color the first palette entry is used.
func (s *ReaderSession) RequestHighlightCreate(selection []byte, color *domain.HighlightColor) (*domain.Highlight, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	locator, err := codec.DecodeLocation(selection, s.doc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	chosen := s.palette[0]
	s.mu.Unlock()
	if color != nil {
		if !color.Valid() {
			return nil, apperrors.NewValidationError("invalid highlight", "unknown color "+color.String())
		}
		chosen = *color
	}

	h := domain.NewHighlight(s.doc.BookID(), *locator, chosen, s.now())
	if _, err := s.store.Add(*h); err != nil {
		return nil, err
	}
	s.events.OnHighlightCreated(*h)
	s.logger.Info("Highlight created", "session_id", s.id, "highlight_id", h.ID, "href", h.Locator.Href)
	return h, nil
}

// RequestHighlightDelete removes a highlight on the host's behalf.
func (s *ReaderSession) RequestHighlightDelete(id string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.DeleteHighlight(id)
}

// DeleteHighlight implements domain.HighlightMutator.
func (s *ReaderSession) DeleteHighlight(id string) error {
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.events.OnHighlightDeleted(id)
	s.logger.Info("Highlight deleted", "session_id", s.id, "highlight_id", id)
	return nil
}

// RecolorHighlight implements domain.HighlightMutator. The replacement is
// reported as a created highlight with the same id.
func (s *ReaderSession) RecolorHighlight(id string, color domain.HighlightColor) error {
	replacement, err := s.store.Update(id, func(current domain.Highlight) domain.Highlight {
		return current.WithColor(color)
	})
	if err != nil {
		return err
	}
	s.events.OnHighlightCreated(*replacement)
	s.logger.Info("Highlight recolored", "session_id", s.id, "highlight_id", id, "color", color.String())
	return nil
}

// ActivateDecoration relays a tap on the decoration with the given id.
// Unknown decorations are ignored.
func (s *ReaderSession) ActivateDecoration(id string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	activator, ok := s.doc.(domain.DecorationActivator)
	if !ok || s.decor == nil {
		return unsupported("decorations")
	}
	if !activator.Activate(domain.HighlightDecorationGroup, id) {
		s.logger.Debug("Ignoring activation of unknown decoration", "session_id", s.id, "decoration_id", id)
	}
	return nil
}

// ResolveHighlightAction applies the host's choice on an action menu.
func (s *ReaderSession) ResolveHighlightAction(token uint64, action domain.HighlightAction, color *domain.HighlightColor) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.decor == nil {
		return unsupported("decorations")
	}
	return s.decor.Resolve(token, action, color)
}

func (s *ReaderSession) SubmitSearchQuery(text string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.search == nil {
		return unsupported("search")
	}
	s.search.Submit(text)
	return nil
}

func (s *ReaderSession) RequestMoreSearchResults() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.search == nil {
		return unsupported("search")
	}
	s.search.LoadNextPage()
	return nil
}

func (s *ReaderSession) CancelSearch() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.search == nil {
		return unsupported("search")
	}
	s.search.Cancel()
	return nil
}

// Teardown releases every resource held by the session. Notifications
// already posted are delivered before it returns.
func (s *ReaderSession) Teardown() {
	s.teardown.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.search != nil {
			s.search.Close()
		}
		if s.decor != nil {
			s.decor.Stop()
		}
		s.bridge.Detach()
		if closer, ok := s.store.(interface{ Close() }); ok {
			closer.Close()
		}
		if err := s.doc.Close(); err != nil {
			s.logger.Warn("Failed to close document", "session_id", s.id, "reason", err.Error())
		}
		s.events.close()
		if s.onClosed != nil {
			s.onClosed(s.id)
		}
		s.logger.Info("Session closed", "session_id", s.id, "book_id", s.doc.BookID())
	})
}

func (s *ReaderSession) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		err := apperrors.NewNotFoundError("session closed")
		err.Details = s.id
		err.Cause = domain.ErrSessionClosed
		return err
	}
	return nil
}

func (s *ReaderSession) capabilities() []string {
	caps := []string{CapabilityNavigation}
	if s.decor != nil {
		caps = append(caps, CapabilityDecorations)
	}
	if s.search != nil {
		caps = append(caps, CapabilitySearch)
	}
	return caps
}

func unsupported(capability string) error {
	err := apperrors.NewValidationError("document does not support "+capability, domain.ErrCapabilityUnsupported.Error())
	err.Cause = domain.ErrCapabilityUnsupported
	return err
}
