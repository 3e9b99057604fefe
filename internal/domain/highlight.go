package domain

import (
	"time"

	"github.com/google/uuid"
)

// HighlightColor is one of the fixed palette entries.
type HighlightColor int

const (
	ColorRed    HighlightColor = 1
	ColorGreen  HighlightColor = 2
	ColorBlue   HighlightColor = 3
	ColorYellow HighlightColor = 4
)

// DefaultPalette lists every supported color in wire order.
var DefaultPalette = []HighlightColor{ColorRed, ColorGreen, ColorBlue, ColorYellow}

// Valid reports whether c belongs to the palette.
func (c HighlightColor) Valid() bool {
	return c >= ColorRed && c <= ColorYellow
}

// Tint returns the hex tint used to render the color.
func (c HighlightColor) Tint() string {
	switch c {
	case ColorRed:
		return "#FF0000"
	case ColorGreen:
		return "#00FF00"
	case ColorBlue:
		return "#0000FF"
	default:
		return "#FFFF00"
	}
}

func (c HighlightColor) String() string {
	switch c {
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	case ColorYellow:
		return "yellow"
	default:
		return "unknown"
	}
}

// ColorOrDefault maps unknown wire values to yellow.
func ColorOrDefault(v int) HighlightColor {
	c := HighlightColor(v)
	if !c.Valid() {
		return ColorYellow
	}
	return c
}

// Highlight is a user annotation over a Locator.
type Highlight struct {
	ID          string         `json:"id"`
	BookID      string         `json:"bookId"`
	Locator     Locator        `json:"locator"`
	Color       HighlightColor `json:"color"`
	CreatedAt   time.Time      `json:"createdAt"`
	Progression *float64       `json:"progression,omitempty"`
}

// NewHighlight creates a highlight with a fresh id. Progression is captured
// from the locator once and never recomputed.
func NewHighlight(bookID string, locator Locator, color HighlightColor, now time.Time) *Highlight {
	return &Highlight{
		ID:          NewHighlightID(),
		BookID:      bookID,
		Locator:     locator,
		Color:       color,
		CreatedAt:   now,
		Progression: locator.TotalProgression(),
	}
}

// NewHighlightID returns an id that is never reused.
func NewHighlightID() string {
	return uuid.New().String()
}

// WithColor returns a replacement highlight differing only in color.
func (h Highlight) WithColor(color HighlightColor) Highlight {
	h.Color = color
	return h
}

// Validate checks the highlight's required fields.
func (h *Highlight) Validate() error {
	if h.ID == "" {
		return &ValidationError{Field: "id", Message: "highlight ID is required"}
	}
	if h.BookID == "" {
		return &ValidationError{Field: "bookId", Message: "book ID is required"}
	}
	if !h.Color.Valid() {
		return &ValidationError{Field: "color", Message: "color is not in the palette"}
	}
	return h.Locator.Validate()
}

// Subscription is a handle on a store subscription.
type Subscription interface {
	Cancel()
}

// HighlightStore owns the authoritative highlight set for open documents.
type HighlightStore interface {
	// Subscribe delivers the current set for bookID immediately and then the
	// full set after every mutation, in mutation order.
	Subscribe(bookID string, fn func([]Highlight)) Subscription
	List(bookID string) []Highlight
	Get(id string) (*Highlight, error)
	Add(highlight Highlight) (string, error)
	// Update replaces an existing highlight with fn's result under the store
	// lock. It fails with NotFound when id is absent.
	Update(id string, fn func(Highlight) Highlight) (*Highlight, error)
	Remove(id string) error
}

// HighlightRepository persists highlights outside the session.
type HighlightRepository interface {
	Upsert(highlight *Highlight, token string) error
	ListByBook(bookID string, token string) ([]*Highlight, error)
	Delete(highlightID string, token string) error
}
