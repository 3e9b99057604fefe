package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

// SearchSession runs one incremental search at a time against a document.
//
// Every search is tagged with a generation number. Completions that carry a
// generation other than the current one are discarded, so a superseded or
// cancelled search can never touch the aggregated results.
type SearchSession struct {
	mu        sync.Mutex
	searcher  domain.Searchable
	listener  domain.SessionListener
	logger    domain.Logger
	debouncer *QueryDebouncer

	state    domain.SearchState
	query    string
	results  []domain.Locator
	lastErr  error
	iterator domain.SearchIterator
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
}

// NewSearchSession creates an empty search session. Queries passed to Submit
// are debounced by debounce before a search starts.
func NewSearchSession(searcher domain.Searchable, listener domain.SessionListener, debounce time.Duration, logger domain.Logger) *SearchSession {
	s := &SearchSession{
		searcher: searcher,
		listener: listener,
		logger:   logger,
		state:    domain.SearchEmpty,
	}
	s.debouncer = NewQueryDebouncer(debounce, s.Search)
	return s
}

// Submit feeds a query into the debounced query stream.
func (s *SearchSession) Submit(query string) {
	s.debouncer.Submit(query)
}

// Search starts a search for query immediately, cancelling the current one.
// A blank query only cancels.
func (s *SearchSession) Search(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if strings.TrimSpace(query) == "" {
		s.cancelLocked()
		return
	}

	hadResults := len(s.results) > 0
	s.resetLocked()
	token := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx = ctx
	s.cancel = cancel
	s.query = query
	s.state = domain.SearchStarting
	if hadResults {
		s.listener.OnSearchResultsChanged([]domain.Locator{})
	}

	s.logger.Debug("Search started", "query", query, "token", token)
	go s.start(ctx, token, query)
}

// LoadNextPage requests the next page when the session is idle. It reports
// whether a request was issued; at most one page is ever in flight.
func (s *SearchSession) LoadNextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != domain.SearchIdle {
		return false
	}
	s.loadNextLocked()
	return true
}

// Cancel closes the iterator, cancels the in-flight operation and clears
// results.
func (s *SearchSession) Cancel() {
	s.debouncer.Cancel()
	s.debouncer.Forget()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Close cancels the session for good.
func (s *SearchSession) Close() {
	s.debouncer.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.state = domain.SearchEmpty
	s.closed = true
}

// Status returns a snapshot of the session.
func (s *SearchSession) Status() domain.SearchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.SearchStatus{
		State:   s.state,
		Query:   s.query,
		Results: append([]domain.Locator{}, s.results...),
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	return status
}

func (s *SearchSession) start(ctx context.Context, token uint64, query string) {
	it, err := s.searcher.Search(ctx, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.gen || s.state != domain.SearchStarting {
		if it != nil {
			it.Close()
		}
		s.logger.Debug("Discarding stale search start", "query", query, "token", token)
		return
	}
	if err != nil {
		s.failLocked(err)
		return
	}
	s.iterator = it
	s.state = domain.SearchIdle
	s.loadNextLocked()
}

func (s *SearchSession) loadNextLocked() {
	s.state = domain.SearchLoadingNext
	go s.fetch(s.ctx, s.gen, s.iterator)
}

func (s *SearchSession) fetch(ctx context.Context, token uint64, it domain.SearchIterator) {
	page, err := it.Next(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.gen || s.state != domain.SearchLoadingNext {
		s.logger.Debug("Discarding stale search page", "token", token, "size", len(page))
		return
	}
	if err != nil {
		s.failLocked(err)
		return
	}
	if len(page) == 0 {
		s.state = domain.SearchEnd
		s.closeIteratorLocked()
		s.logger.Debug("Search exhausted", "query", s.query, "results", len(s.results))
		return
	}

	s.results = append(s.results, page...)
	s.state = domain.SearchIdle
	s.listener.OnSearchResultsChanged(append([]domain.Locator{}, s.results...))
}

func (s *SearchSession) failLocked(err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Type != apperrors.ErrorTypeSearch {
		appErr = apperrors.NewSearchError("search failed", err)
	}

	s.state = domain.SearchFailure
	s.lastErr = appErr
	s.closeIteratorLocked()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Error("Search failed", err, "query", s.query, "results", len(s.results))
	s.listener.OnSearchFailed(string(apperrors.Kind(appErr)))
}

func (s *SearchSession) cancelLocked() {
	wasEmpty := s.state == domain.SearchEmpty && len(s.results) == 0
	s.resetLocked()
	s.state = domain.SearchEmpty
	if !wasEmpty {
		s.listener.OnSearchResultsChanged([]domain.Locator{})
	}
}

// resetLocked invalidates every outstanding completion by moving to a new
// generation, then releases the iterator and clears aggregated state.
func (s *SearchSession) resetLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closeIteratorLocked()
	s.results = nil
	s.query = ""
	s.lastErr = nil
}

func (s *SearchSession) closeIteratorLocked() {
	if s.iterator != nil {
		s.iterator.Close()
		s.iterator = nil
	}
}
