package domain

import "context"

// SessionListener receives the outbound notifications of a reading session.
type SessionListener interface {
	OnPositionChanged(locator Locator)
	OnTableOfContents(toc []Link)
	OnHighlightCreated(highlight Highlight)
	OnHighlightDeleted(id string)
	OnHighlightActionsPresented(menu ActionMenu)
	OnSearchResultsChanged(results []Locator)
	OnSearchFailed(errorKind string)
}

// NopSessionListener ignores every notification. Embed it to implement a
// subset of SessionListener.
type NopSessionListener struct{}

func (NopSessionListener) OnPositionChanged(Locator)              {}
func (NopSessionListener) OnTableOfContents([]Link)               {}
func (NopSessionListener) OnHighlightCreated(Highlight)           {}
func (NopSessionListener) OnHighlightDeleted(string)              {}
func (NopSessionListener) OnHighlightActionsPresented(ActionMenu) {}
func (NopSessionListener) OnSearchResultsChanged([]Locator)       {}
func (NopSessionListener) OnSearchFailed(string)                  {}

// OpenRequest carries the inbound openDocument parameters. Location and
// Highlights are raw wire payloads.
type OpenRequest struct {
	Path       string
	BookID     string
	Location   []byte
	Highlights []byte
	Token      string
}

// SessionStatus is a snapshot of a reading session.
type SessionStatus struct {
	ID              string           `json:"id"`
	BookID          string           `json:"bookId"`
	Layout          string           `json:"layout"`
	CurrentLocation *Locator         `json:"currentLocation,omitempty"`
	Highlights      []Highlight      `json:"highlights"`
	Palette         []HighlightColor `json:"palette"`
	Search          *SearchStatus    `json:"search,omitempty"`
	Capabilities    []string         `json:"capabilities"`
}

// ReaderSession is the boundary surface of one open document.
type ReaderSession interface {
	ID() string
	Status() SessionStatus
	TableOfContents() []Link
	SetDesiredPosition(ctx context.Context, location []byte) error
	SetHighlightColorPalette(colors []HighlightColor) error
	RequestHighlightCreate(selection []byte, color *HighlightColor) (*Highlight, error)
	RequestHighlightDelete(id string) error
	ActivateDecoration(id string) error
	ResolveHighlightAction(token uint64, action HighlightAction, color *HighlightColor) error
	SubmitSearchQuery(text string) error
	RequestMoreSearchResults() error
	CancelSearch() error
	Teardown()
}

// SessionManager opens and tracks reader sessions.
type SessionManager interface {
	Open(ctx context.Context, req OpenRequest, listener SessionListener) (ReaderSession, error)
	Get(id string) (ReaderSession, error)
	Close(id string) error
	CloseAll()
}
