package service

import (
	"sync"

	"reading-bridge/internal/domain"
)

// MultiListener fans every notification out to each listener in order.
type MultiListener []domain.SessionListener

func (m MultiListener) OnPositionChanged(locator domain.Locator) {
	for _, l := range m {
		l.OnPositionChanged(locator)
	}
}

func (m MultiListener) OnTableOfContents(toc []domain.Link) {
	for _, l := range m {
		l.OnTableOfContents(toc)
	}
}

func (m MultiListener) OnHighlightCreated(highlight domain.Highlight) {
	for _, l := range m {
		l.OnHighlightCreated(highlight)
	}
}

func (m MultiListener) OnHighlightDeleted(id string) {
	for _, l := range m {
		l.OnHighlightDeleted(id)
	}
}

func (m MultiListener) OnHighlightActionsPresented(menu domain.ActionMenu) {
	for _, l := range m {
		l.OnHighlightActionsPresented(menu)
	}
}

func (m MultiListener) OnSearchResultsChanged(results []domain.Locator) {
	for _, l := range m {
		l.OnSearchResultsChanged(results)
	}
}

func (m MultiListener) OnSearchFailed(errorKind string) {
	for _, l := range m {
		l.OnSearchFailed(errorKind)
	}
}

// PresentActions adapts the listener to domain.ActionPresenter.
func (m MultiListener) PresentActions(menu domain.ActionMenu) {
	m.OnHighlightActionsPresented(menu)
}

// eventQueue delivers notifications to target from a single goroutine in the
// order they were posted. Posting never blocks, so components may notify
// while holding their own locks.
type eventQueue struct {
	target domain.SessionListener

	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newEventQueue(target domain.SessionListener) *eventQueue {
	q := &eventQueue{
		target: target,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) post(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			next := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			next()
		}
	}
}

// close stops accepting notifications and waits until those already posted
// have been delivered.
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *eventQueue) OnPositionChanged(locator domain.Locator) {
	q.post(func() { q.target.OnPositionChanged(locator) })
}

func (q *eventQueue) OnTableOfContents(toc []domain.Link) {
	q.post(func() { q.target.OnTableOfContents(toc) })
}

func (q *eventQueue) OnHighlightCreated(highlight domain.Highlight) {
	q.post(func() { q.target.OnHighlightCreated(highlight) })
}

func (q *eventQueue) OnHighlightDeleted(id string) {
	q.post(func() { q.target.OnHighlightDeleted(id) })
}

func (q *eventQueue) OnHighlightActionsPresented(menu domain.ActionMenu) {
	q.post(func() { q.target.OnHighlightActionsPresented(menu) })
}

func (q *eventQueue) OnSearchResultsChanged(results []domain.Locator) {
	q.post(func() { q.target.OnSearchResultsChanged(results) })
}

func (q *eventQueue) OnSearchFailed(errorKind string) {
	q.post(func() { q.target.OnSearchFailed(errorKind) })
}

func (q *eventQueue) PresentActions(menu domain.ActionMenu) {
	q.OnHighlightActionsPresented(menu)
}

// persistingListener mirrors host-visible highlight changes into a
// HighlightRepository. Failures are logged; the session keeps running.
type persistingListener struct {
	domain.NopSessionListener
	repo   domain.HighlightRepository
	token  string
	logger domain.Logger
}

func newPersistingListener(repo domain.HighlightRepository, token string, logger domain.Logger) *persistingListener {
	return &persistingListener{repo: repo, token: token, logger: logger}
}

func (p *persistingListener) OnHighlightCreated(highlight domain.Highlight) {
	if err := p.repo.Upsert(&highlight, p.token); err != nil {
		p.logger.Error("Failed to persist highlight", err, "highlight_id", highlight.ID, "book_id", highlight.BookID)
	}
}

func (p *persistingListener) OnHighlightDeleted(id string) {
	if err := p.repo.Delete(id, p.token); err != nil {
		p.logger.Error("Failed to delete persisted highlight", err, "highlight_id", id)
	}
}
