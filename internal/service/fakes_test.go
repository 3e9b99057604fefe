package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"reading-bridge/internal/domain"
)

type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) record(s string) {
	m.mu.Lock()
	m.messages = append(m.messages, s)
	m.mu.Unlock()
}

func (m *MockLogger) Info(msg string, args ...interface{})  { m.record("INFO: " + msg) }
func (m *MockLogger) Debug(msg string, args ...interface{}) { m.record("DEBUG: " + msg) }
func (m *MockLogger) Warn(msg string, args ...interface{})  { m.record("WARN: " + msg) }
func (m *MockLogger) Error(msg string, err error, args ...interface{}) {
	m.record("ERROR: " + msg)
}

func (m *MockLogger) Contains(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// recordingListener captures every outbound notification.
type recordingListener struct {
	mu        sync.Mutex
	positions []domain.Locator
	tocs      [][]domain.Link
	created   []domain.Highlight
	deleted   []string
	menus     []domain.ActionMenu
	results   [][]domain.Locator
	failures  []string
}

func (r *recordingListener) OnPositionChanged(l domain.Locator) {
	r.mu.Lock()
	r.positions = append(r.positions, l)
	r.mu.Unlock()
}

func (r *recordingListener) OnTableOfContents(toc []domain.Link) {
	r.mu.Lock()
	r.tocs = append(r.tocs, toc)
	r.mu.Unlock()
}

func (r *recordingListener) OnHighlightCreated(h domain.Highlight) {
	r.mu.Lock()
	r.created = append(r.created, h)
	r.mu.Unlock()
}

func (r *recordingListener) OnHighlightDeleted(id string) {
	r.mu.Lock()
	r.deleted = append(r.deleted, id)
	r.mu.Unlock()
}

func (r *recordingListener) OnHighlightActionsPresented(menu domain.ActionMenu) {
	r.mu.Lock()
	r.menus = append(r.menus, menu)
	r.mu.Unlock()
}

func (r *recordingListener) OnSearchResultsChanged(results []domain.Locator) {
	r.mu.Lock()
	r.results = append(r.results, results)
	r.mu.Unlock()
}

func (r *recordingListener) OnSearchFailed(kind string) {
	r.mu.Lock()
	r.failures = append(r.failures, kind)
	r.mu.Unlock()
}

func (r *recordingListener) PresentActions(menu domain.ActionMenu) {
	r.OnHighlightActionsPresented(menu)
}

func (r *recordingListener) lastMenu() (domain.ActionMenu, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.menus) == 0 {
		return domain.ActionMenu{}, false
	}
	return r.menus[len(r.menus)-1], true
}

func (r *recordingListener) menuCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.menus)
}

func (r *recordingListener) positionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

// lastResults returns the result list the host would currently show.
func (r *recordingListener) lastResults() []domain.Locator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return nil
	}
	return r.results[len(r.results)-1]
}

func (r *recordingListener) failureKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.failures...)
}

func (r *recordingListener) createdIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.created))
	for _, h := range r.created {
		out = append(out, h.ID)
	}
	return out
}

func (r *recordingListener) deletedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.deleted...)
}

// fakeDocument is a reflowable document with every capability.
type fakeDocument struct {
	mu           sync.Mutex
	bookID       string
	current      *domain.Locator
	toc          []domain.Link
	navigations  []domain.Locator
	positions    map[int]func(domain.Locator)
	interactions map[int]func(domain.DecorationEvent)
	nextObserver int
	groups       map[string][]domain.Decoration
	searcher     *fakeSearcher
	closed       bool
}

func newFakeDocument(bookID string) *fakeDocument {
	return &fakeDocument{
		bookID: bookID,
		toc: []domain.Link{
			{Href: "/c1", Title: "One"},
			{Href: "/c2", Title: "Two", Children: []domain.Link{{Href: "/c2#part", Title: "Part"}}},
		},
		positions:    make(map[int]func(domain.Locator)),
		interactions: make(map[int]func(domain.DecorationEvent)),
		groups:       make(map[string][]domain.Decoration),
		searcher:     newFakeSearcher(),
	}
}

func (d *fakeDocument) BookID() string                 { return d.bookID }
func (d *fakeDocument) Layout() string                 { return domain.LayoutReflowable }
func (d *fakeDocument) TableOfContents() []domain.Link { return d.toc }

func (d *fakeDocument) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDocument) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDocument) CurrentLocation() *domain.Locator {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	l := *d.current
	return &l
}

func (d *fakeDocument) Locate(link domain.Link) (*domain.Locator, bool) {
	href := link.Href
	if i := strings.Index(href, "#"); i >= 0 {
		href = href[:i]
	}
	for _, entry := range d.toc {
		if entry.Href == href {
			return &domain.Locator{Href: href, Locations: &domain.Locations{Progression: domain.Float64(0)}}, true
		}
	}
	return nil, false
}

func (d *fakeDocument) Go(ctx context.Context, locator domain.Locator, animated bool) error {
	if locator.Href == "/missing" {
		return errors.New("unknown resource")
	}
	d.mu.Lock()
	d.current = &locator
	d.navigations = append(d.navigations, locator)
	observers := make([]func(domain.Locator), 0, len(d.positions))
	for _, fn := range d.positions {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	for _, fn := range observers {
		fn(locator)
	}
	return nil
}

func (d *fakeDocument) navigationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.navigations)
}

func (d *fakeDocument) ObservePositions(fn func(domain.Locator)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextObserver++
	id := d.nextObserver
	d.positions[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.positions, id)
		d.mu.Unlock()
	}
}

func (d *fakeDocument) ApplyDecorations(group string, decorations []domain.Decoration) {
	d.mu.Lock()
	d.groups[group] = decorations
	d.mu.Unlock()
}

func (d *fakeDocument) decorationIDs(group string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.groups[group]))
	for _, dec := range d.groups[group] {
		out = append(out, dec.ID)
	}
	return out
}

func (d *fakeDocument) ObserveDecorationInteractions(group string, fn func(domain.DecorationEvent)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextObserver++
	id := d.nextObserver
	d.interactions[id] = fn
	return func() {
		d.mu.Lock()
		delete(d.interactions, id)
		d.mu.Unlock()
	}
}

func (d *fakeDocument) Activate(group, id string) bool {
	d.mu.Lock()
	found := false
	for _, dec := range d.groups[group] {
		if dec.ID == id {
			found = true
			break
		}
	}
	observers := make([]func(domain.DecorationEvent), 0, len(d.interactions))
	for _, fn := range d.interactions {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	if !found {
		return false
	}
	for _, fn := range observers {
		fn(domain.DecorationEvent{Group: group, DecorationID: id})
	}
	return true
}

func (d *fakeDocument) Search(ctx context.Context, query string) (domain.SearchIterator, error) {
	return d.searcher.Search(ctx, query)
}

// navigationOnly hides every optional capability of a document.
type navigationOnly struct {
	doc *fakeDocument
}

func (n navigationOnly) BookID() string                   { return n.doc.BookID() }
func (n navigationOnly) Layout() string                   { return domain.LayoutFixed }
func (n navigationOnly) Close() error                     { return n.doc.Close() }
func (n navigationOnly) TableOfContents() []domain.Link   { return n.doc.TableOfContents() }
func (n navigationOnly) CurrentLocation() *domain.Locator { return n.doc.CurrentLocation() }
func (n navigationOnly) Locate(link domain.Link) (*domain.Locator, bool) {
	return n.doc.Locate(link)
}
func (n navigationOnly) Go(ctx context.Context, l domain.Locator, animated bool) error {
	return n.doc.Go(ctx, l, animated)
}
func (n navigationOnly) ObservePositions(fn func(domain.Locator)) func() {
	return n.doc.ObservePositions(fn)
}

// fakeSearcher serves canned pages per query. A gated query blocks every
// Next call until its gate is closed, ignoring context cancellation so
// late completions can be observed.
type fakeSearcher struct {
	mu        sync.Mutex
	pages     map[string][][]domain.Locator
	gates     map[string]chan struct{}
	failAfter map[string]error
	searchErr error
	queries   []string
	closed    int
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		pages:     make(map[string][][]domain.Locator),
		gates:     make(map[string]chan struct{}),
		failAfter: make(map[string]error),
	}
}

func (s *fakeSearcher) Search(ctx context.Context, query string) (domain.SearchIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return &fakeIterator{
		searcher: s,
		pages:    s.pages[query],
		gate:     s.gates[query],
		failure:  s.failAfter[query],
	}, nil
}

func (s *fakeSearcher) gate(query string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := make(chan struct{})
	s.gates[query] = g
	return g
}

func (s *fakeSearcher) queryLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.queries...)
}

func (s *fakeSearcher) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeIterator struct {
	searcher *fakeSearcher
	mu       sync.Mutex
	pages    [][]domain.Locator
	gate     chan struct{}
	failure  error
	closed   bool
}

func (it *fakeIterator) Next(ctx context.Context) ([]domain.Locator, error) {
	if it.gate != nil {
		<-it.gate
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	if len(it.pages) == 0 {
		if it.failure != nil {
			return nil, it.failure
		}
		return nil, nil
	}
	page := it.pages[0]
	it.pages = it.pages[1:]
	return page, nil
}

func (it *fakeIterator) Close() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return
	}
	it.closed = true
	it.searcher.mu.Lock()
	it.searcher.closed++
	it.searcher.mu.Unlock()
}

func loc(href string) domain.Locator {
	return domain.Locator{Href: href, MediaType: "application/xhtml+xml"}
}

func hrefs(locators []domain.Locator) []string {
	out := make([]string, 0, len(locators))
	for _, l := range locators {
		out = append(out, l.Href)
	}
	return out
}
