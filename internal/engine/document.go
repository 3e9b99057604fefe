package engine

import (
	"context"
	"sort"
	"strings"
	"sync"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

// document implements domain.Navigator and domain.Searchable over a list of
// resources. Format-specific variants embed it.
type document struct {
	bookID    string
	layout    string
	resources []resource
	index     map[string]int
	toc       []domain.Link
	pageSize  int
	logger    domain.Logger

	// navMu serializes navigation so observers see changes in order.
	navMu sync.Mutex

	mu           sync.Mutex
	current      *domain.Locator
	observers    map[uint64]func(domain.Locator)
	nextObserver uint64
	closed       bool
}

func newDocument(bookID, layout string, pub *publication, toc []domain.Link, pageSize int, logger domain.Logger) *document {
	index := make(map[string]int, len(pub.Resources))
	for i, r := range pub.Resources {
		index[r.Href] = i
	}
	return &document{
		bookID:    bookID,
		layout:    layout,
		resources: pub.Resources,
		index:     index,
		toc:       toc,
		pageSize:  pageSize,
		logger:    logger,
		observers: make(map[uint64]func(domain.Locator)),
	}
}

func (d *document) BookID() string { return d.bookID }
func (d *document) Layout() string { return d.layout }

func (d *document) TableOfContents() []domain.Link {
	return append([]domain.Link{}, d.toc...)
}

func (d *document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.observers = make(map[uint64]func(domain.Locator))
	d.mu.Unlock()
	return nil
}

func (d *document) CurrentLocation() *domain.Locator {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	l := *d.current
	return &l
}

// Locate resolves a link to the start of the resource it points into. The
// fragment is ignored.
func (d *document) Locate(link domain.Link) (*domain.Locator, bool) {
	idx, ok := d.resourceIndex(link.Href)
	if !ok {
		return nil, false
	}
	locator := d.locatorAt(idx, 0)
	if link.Title != "" {
		locator.Title = domain.String(link.Title)
	}
	return &locator, true
}

// Go moves to locator and reports the new position to every observer once.
// Missing locations are completed from the resource index.
func (d *document) Go(ctx context.Context, locator domain.Locator, animated bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx, ok := d.resourceIndex(locator.Href)
	if !ok {
		err := apperrors.NewNotFoundError("resource not found")
		err.Details = locator.Href
		return err
	}

	progression := 0.0
	if locator.Locations != nil && locator.Locations.Progression != nil {
		progression = *locator.Locations.Progression
	}
	resolved := d.locatorAt(idx, progression)
	resolved.Text = locator.Text
	if locator.Title != nil {
		resolved.Title = locator.Title
	}
	if locator.MediaType != "" {
		resolved.MediaType = locator.MediaType
	}

	d.navMu.Lock()
	defer d.navMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return apperrors.NewEngineUnavailableError("document closed", nil)
	}
	current := resolved
	d.current = &current
	observers := d.observersLocked()
	d.mu.Unlock()

	d.logger.Debug("Position changed", "book_id", d.bookID, "href", resolved.Href, "animated", animated)
	for _, fn := range observers {
		fn(resolved)
	}
	return nil
}

func (d *document) ObservePositions(fn func(domain.Locator)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextObserver++
	id := d.nextObserver
	d.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.observers, id)
			d.mu.Unlock()
		})
	}
}

func (d *document) Search(ctx context.Context, query string) (domain.SearchIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, apperrors.NewEngineUnavailableError("document closed", nil)
	}
	return newSearchIterator(d, query, d.pageSize)
}

func (d *document) observersLocked() []func(domain.Locator) {
	ids := make([]uint64, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]func(domain.Locator), 0, len(ids))
	for _, id := range ids {
		out = append(out, d.observers[id])
	}
	return out
}

func (d *document) resourceIndex(href string) (int, bool) {
	if i := strings.Index(href, "#"); i >= 0 {
		href = href[:i]
	}
	idx, ok := d.index[href]
	if !ok && !strings.HasPrefix(href, "/") {
		idx, ok = d.index["/"+href]
	}
	return idx, ok
}

// locatorAt builds the locator for a progression inside resource idx.
func (d *document) locatorAt(idx int, progression float64) domain.Locator {
	r := d.resources[idx]
	total := (float64(idx) + progression) / float64(len(d.resources))
	locator := domain.Locator{
		Href:      r.Href,
		MediaType: r.MediaType,
		Locations: &domain.Locations{
			Position:         domain.Int(idx + 1),
			Progression:      domain.Float64(progression),
			TotalProgression: domain.Float64(total),
		},
	}
	if r.Title != "" {
		locator.Title = domain.String(r.Title)
	}
	return locator
}
