package domain

import "context"

// DocumentRef identifies a document to open.
type DocumentRef struct {
	Path   string
	BookID string
}

// RenderingEngine opens documents for a reading session.
type RenderingEngine interface {
	Open(ctx context.Context, ref DocumentRef) (Document, error)
}

// LinkResolver turns a navigation link into a concrete Locator.
type LinkResolver interface {
	Locate(link Link) (*Locator, bool)
}

// Navigator is the position-handling capability every document has.
type Navigator interface {
	LinkResolver
	CurrentLocation() *Locator
	Go(ctx context.Context, locator Locator, animated bool) error
	// ObservePositions registers fn for every position change, delivered in
	// emission order. The returned func unregisters it.
	ObservePositions(fn func(Locator)) (cancel func())
	TableOfContents() []Link
}

// Decorator is implemented by documents that can render decorations and
// report interactions with them.
type Decorator interface {
	ApplyDecorations(group string, decorations []Decoration)
	ObserveDecorationInteractions(group string, fn func(DecorationEvent)) (cancel func())
}

// DecorationActivator lets a host relay a tap on a decoration.
type DecorationActivator interface {
	Activate(group string, decorationID string) bool
}

// SearchIterator pages through search results. Next returns nil when the
// iterator is exhausted.
type SearchIterator interface {
	Next(ctx context.Context) ([]Locator, error)
	Close()
}

// Searchable is implemented by documents with a content index.
type Searchable interface {
	Search(ctx context.Context, query string) (SearchIterator, error)
}

// Document is an opened publication.
type Document interface {
	Navigator
	BookID() string
	Layout() string
	Close() error
}

// Document layouts.
const (
	LayoutReflowable = "reflowable"
	LayoutFixed      = "fixed"
)
