package repository

import (
	"sync"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

// HighlightStore is the in-memory working set of highlights for a session.
// Mutations are serialized by mu; publications are queued to each subscriber
// while mu is held, so every subscriber sees sets in mutation order.
type HighlightStore struct {
	mu          sync.Mutex
	order       []string
	highlights  map[string]domain.Highlight
	subscribers map[uint64]*storeSubscription
	nextSubID   uint64
	closed      bool
	logger      domain.Logger
}

// NewHighlightStore creates a store seeded with initial. Invalid seeds are
// skipped and logged.
func NewHighlightStore(logger domain.Logger, initial ...domain.Highlight) *HighlightStore {
	s := &HighlightStore{
		highlights:  make(map[string]domain.Highlight),
		subscribers: make(map[uint64]*storeSubscription),
		logger:      logger,
	}
	for _, h := range initial {
		if err := h.Validate(); err != nil {
			logger.Warn("Skipping invalid initial highlight", "highlight_id", h.ID, "reason", err.Error())
			continue
		}
		s.putLocked(h)
	}
	return s
}

// Subscribe delivers the current set for bookID immediately, then the full
// set after every mutation affecting bookID.
func (s *HighlightStore) Subscribe(bookID string, fn func([]domain.Highlight)) domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSubID++
	sub := &storeSubscription{
		id:     s.nextSubID,
		bookID: bookID,
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		store:  s,
	}
	if s.closed {
		sub.once.Do(func() { close(sub.done) })
		return sub
	}
	s.subscribers[sub.id] = sub
	go sub.run()
	sub.enqueue(s.listLocked(bookID))
	return sub
}

// List returns a snapshot of the highlights for bookID in insertion order.
func (s *HighlightStore) List(bookID string) []domain.Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(bookID)
}

// Get returns the highlight with the given id.
func (s *HighlightStore) Get(id string) (*domain.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.highlights[id]
	if !ok {
		return nil, highlightNotFound(id)
	}
	return &h, nil
}

// Add inserts or replaces a highlight. Re-adding an existing id replaces it
// in place; its book cannot change.
func (s *HighlightStore) Add(h domain.Highlight) (string, error) {
	if h.ID == "" {
		h.ID = domain.NewHighlightID()
	}
	if err := h.Validate(); err != nil {
		return "", apperrors.NewValidationError("invalid highlight", err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.highlights[h.ID]; ok && existing.BookID != h.BookID {
		return "", apperrors.NewValidationError("invalid highlight", domain.ErrBookMismatch.Error())
	}
	s.putLocked(h)
	s.publishLocked(h.BookID)
	return h.ID, nil
}

// Update rewrites the highlight with the given id. The id and book of the
// result are kept from the current record.
func (s *HighlightStore) Update(id string, fn func(domain.Highlight) domain.Highlight) (*domain.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.highlights[id]
	if !ok {
		return nil, highlightNotFound(id)
	}
	next := fn(current)
	next.ID = current.ID
	next.BookID = current.BookID
	if err := next.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid highlight", err.Error())
	}
	s.putLocked(next)
	s.publishLocked(next.BookID)
	return &next, nil
}

// Remove deletes the highlight with the given id.
func (s *HighlightStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.highlights[id]
	if !ok {
		return highlightNotFound(id)
	}
	delete(s.highlights, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.publishLocked(h.BookID)
	return nil
}

// Close cancels every subscription. Further subscriptions are inert.
func (s *HighlightStore) Close() {
	s.mu.Lock()
	subs := make([]*storeSubscription, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.closed = true
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (s *HighlightStore) putLocked(h domain.Highlight) {
	if _, ok := s.highlights[h.ID]; !ok {
		s.order = append(s.order, h.ID)
	}
	s.highlights[h.ID] = h
}

func (s *HighlightStore) listLocked(bookID string) []domain.Highlight {
	out := make([]domain.Highlight, 0, len(s.order))
	for _, id := range s.order {
		if h := s.highlights[id]; h.BookID == bookID {
			out = append(out, h)
		}
	}
	return out
}

func (s *HighlightStore) publishLocked(bookID string) {
	for _, sub := range s.subscribers {
		if sub.bookID == bookID {
			sub.enqueue(s.listLocked(bookID))
		}
	}
}

func (s *HighlightStore) unsubscribe(id uint64) {
	s.mu.Lock()
	delete(s.subscribers, id)
	s.mu.Unlock()
}

func highlightNotFound(id string) *apperrors.AppError {
	err := apperrors.NewNotFoundError("highlight not found")
	err.Details = id
	err.Cause = domain.ErrHighlightNotFound
	return err
}

// storeSubscription delivers queued publications from its own goroutine so a
// subscriber may call back into the store without deadlocking.
type storeSubscription struct {
	id     uint64
	bookID string
	fn     func([]domain.Highlight)

	mu    sync.Mutex
	queue [][]domain.Highlight
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
	store *HighlightStore
}

func (s *storeSubscription) enqueue(set []domain.Highlight) {
	s.mu.Lock()
	s.queue = append(s.queue, set)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *storeSubscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(next)
		}
	}
}

// Cancel stops delivery. Publications still queued are dropped.
func (s *storeSubscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.store.unsubscribe(s.id)
	})
}
