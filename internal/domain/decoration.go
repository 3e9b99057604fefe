package domain

// HighlightDecorationGroup is the engine group mirroring the highlight store.
const HighlightDecorationGroup = "highlights"

// DecorationStyle holds the visual parameters of a decoration.
type DecorationStyle struct {
	Kind     string `json:"kind"`
	Tint     string `json:"tint"`
	IsActive bool   `json:"isActive"`
}

// Decoration is a derived overlay rendered by the engine. Its ID equals the
// source highlight ID.
type Decoration struct {
	ID      string          `json:"id"`
	Locator Locator         `json:"locator"`
	Style   DecorationStyle `json:"style"`
}

// DecorationFromHighlight derives the overlay for h.
func DecorationFromHighlight(h Highlight, isActive bool) Decoration {
	return Decoration{
		ID:      h.ID,
		Locator: h.Locator,
		Style: DecorationStyle{
			Kind:     "highlight",
			Tint:     h.Color.Tint(),
			IsActive: isActive,
		},
	}
}

// DecorationEvent reports an interaction with a decoration.
type DecorationEvent struct {
	Group        string
	DecorationID string
}

// HighlightAction is the choice made on an action menu.
type HighlightAction string

const (
	HighlightActionDelete      HighlightAction = "delete"
	HighlightActionChangeColor HighlightAction = "change_color"
)

// ActionMenu is presented when a highlight decoration is activated. Token
// identifies the activation; only the latest token can resolve.
type ActionMenu struct {
	Token       uint64            `json:"token"`
	HighlightID string            `json:"highlightId"`
	Colors      []HighlightColor  `json:"colors"`
	Actions     []HighlightAction `json:"actions"`
}

// ActionPresenter shows an action menu to the user.
type ActionPresenter interface {
	PresentActions(menu ActionMenu)
}

// HighlightMutator applies resolved highlight actions.
type HighlightMutator interface {
	DeleteHighlight(id string) error
	RecolorHighlight(id string, color HighlightColor) error
}
