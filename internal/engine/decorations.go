package engine

import (
	"sort"
	"sync"

	"reading-bridge/internal/domain"
)

// decorationDiff is the minimal change between two contents of a group.
type decorationDiff struct {
	Added   []string
	Updated []string
	Removed []string
}

func (d decorationDiff) empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// diffDecorations compares two group contents by decoration id.
func diffDecorations(previous, next []domain.Decoration) decorationDiff {
	before := make(map[string]domain.Decoration, len(previous))
	for _, dec := range previous {
		before[dec.ID] = dec
	}

	var diff decorationDiff
	seen := make(map[string]bool, len(next))
	for _, dec := range next {
		seen[dec.ID] = true
		old, ok := before[dec.ID]
		switch {
		case !ok:
			diff.Added = append(diff.Added, dec.ID)
		case !sameDecoration(old, dec):
			diff.Updated = append(diff.Updated, dec.ID)
		}
	}
	for _, dec := range previous {
		if !seen[dec.ID] {
			diff.Removed = append(diff.Removed, dec.ID)
		}
	}
	return diff
}

func sameDecoration(a, b domain.Decoration) bool {
	return a.Style == b.Style && a.Locator.Fingerprint() == b.Locator.Fingerprint()
}

// decorationLayer holds rendered decoration groups and dispatches taps on
// them. Only reflowable documents carry one.
type decorationLayer struct {
	bookID string
	logger domain.Logger

	mu           sync.Mutex
	groups       map[string][]domain.Decoration
	observers    map[string]map[uint64]func(domain.DecorationEvent)
	nextObserver uint64
	lastDiff     map[string]decorationDiff
}

func newDecorationLayer(bookID string, logger domain.Logger) *decorationLayer {
	return &decorationLayer{
		bookID:    bookID,
		logger:    logger,
		groups:    make(map[string][]domain.Decoration),
		observers: make(map[string]map[uint64]func(domain.DecorationEvent)),
		lastDiff:  make(map[string]decorationDiff),
	}
}

// ApplyDecorations replaces the content of group, rendering only the
// decorations that changed.
func (l *decorationLayer) ApplyDecorations(group string, decorations []domain.Decoration) {
	next := append([]domain.Decoration{}, decorations...)

	l.mu.Lock()
	diff := diffDecorations(l.groups[group], next)
	l.groups[group] = next
	l.lastDiff[group] = diff
	l.mu.Unlock()

	if diff.empty() {
		return
	}
	l.logger.Debug("Decorations rendered",
		"book_id", l.bookID,
		"group", group,
		"added", len(diff.Added),
		"updated", len(diff.Updated),
		"removed", len(diff.Removed),
	)
}

func (l *decorationLayer) ObserveDecorationInteractions(group string, fn func(domain.DecorationEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextObserver++
	id := l.nextObserver
	if l.observers[group] == nil {
		l.observers[group] = make(map[uint64]func(domain.DecorationEvent))
	}
	l.observers[group][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.observers[group], id)
			l.mu.Unlock()
		})
	}
}

// Activate simulates a tap on decoration id of group. It reports false when
// the group holds no such decoration.
func (l *decorationLayer) Activate(group, id string) bool {
	l.mu.Lock()
	found := false
	for _, dec := range l.groups[group] {
		if dec.ID == id {
			found = true
			break
		}
	}
	ids := make([]uint64, 0, len(l.observers[group]))
	for oid := range l.observers[group] {
		ids = append(ids, oid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]func(domain.DecorationEvent), 0, len(ids))
	for _, oid := range ids {
		observers = append(observers, l.observers[group][oid])
	}
	l.mu.Unlock()

	if !found {
		return false
	}
	event := domain.DecorationEvent{Group: group, DecorationID: id}
	for _, fn := range observers {
		fn(event)
	}
	return true
}

// Decorations returns the current content of group.
func (l *decorationLayer) Decorations(group string) []domain.Decoration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Decoration{}, l.groups[group]...)
}

func (l *decorationLayer) lastChange(group string) decorationDiff {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastDiff[group]
}
