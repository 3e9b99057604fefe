package service

import (
	"sync"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

// armedActivation is an action menu waiting for the host's choice.
type armedActivation struct {
	token       uint64
	highlightID string
}

// DecorationSynchronizer mirrors a book's highlights into the engine's
// "highlights" decoration group and turns decoration taps into highlight
// actions.
//
// Only the most recently armed activation can resolve. Arming a new one
// supersedes the previous menu; its late resolution is dropped.
type DecorationSynchronizer struct {
	bookID    string
	store     domain.HighlightStore
	decorator domain.Decorator
	presenter domain.ActionPresenter
	mutator   domain.HighlightMutator
	logger    domain.Logger

	mu           sync.Mutex
	palette      []domain.HighlightColor
	armed        *armedActivation
	nextToken    uint64
	mirrored     []string
	subscription domain.Subscription
	stopObserve  func()
	stopped      bool
}

func NewDecorationSynchronizer(
	bookID string,
	store domain.HighlightStore,
	decorator domain.Decorator,
	presenter domain.ActionPresenter,
	mutator domain.HighlightMutator,
	logger domain.Logger,
) *DecorationSynchronizer {
	return &DecorationSynchronizer{
		bookID:    bookID,
		store:     store,
		decorator: decorator,
		presenter: presenter,
		mutator:   mutator,
		logger:    logger,
		palette:   append([]domain.HighlightColor{}, domain.DefaultPalette...),
	}
}

// Start subscribes to the store and to decoration interactions.
func (d *DecorationSynchronizer) Start() {
	stopObserve := d.decorator.ObserveDecorationInteractions(domain.HighlightDecorationGroup, d.HandleInteraction)
	sub := d.store.Subscribe(d.bookID, d.mirror)

	d.mu.Lock()
	d.subscription = sub
	d.stopObserve = stopObserve
	d.mu.Unlock()
}

// Stop cancels both subscriptions and disarms any pending activation.
func (d *DecorationSynchronizer) Stop() {
	d.mu.Lock()
	sub, stopObserve := d.subscription, d.stopObserve
	d.subscription, d.stopObserve = nil, nil
	d.armed = nil
	d.stopped = true
	d.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if stopObserve != nil {
		stopObserve()
	}
}

// SetPalette sets the colors offered by subsequent action menus.
func (d *DecorationSynchronizer) SetPalette(colors []domain.HighlightColor) {
	d.mu.Lock()
	d.palette = append([]domain.HighlightColor{}, colors...)
	d.mu.Unlock()
}

// Mirrored returns the decoration ids last applied to the engine.
func (d *DecorationSynchronizer) Mirrored() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.mirrored...)
}

// mirror recomputes the whole group from a store publication. The store
// delivers publications to this subscriber serially.
func (d *DecorationSynchronizer) mirror(highlights []domain.Highlight) {
	decorations := make([]domain.Decoration, 0, len(highlights))
	ids := make([]string, 0, len(highlights))
	for _, h := range highlights {
		decorations = append(decorations, domain.DecorationFromHighlight(h, false))
		ids = append(ids, h.ID)
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.mirrored = ids
	d.mu.Unlock()

	d.decorator.ApplyDecorations(domain.HighlightDecorationGroup, decorations)
	d.logger.Debug("Decorations mirrored", "book_id", d.bookID, "count", len(decorations))
}

// HandleInteraction arms an action menu for the tapped highlight. Taps on
// decorations whose highlight is already gone are ignored.
func (d *DecorationSynchronizer) HandleInteraction(event domain.DecorationEvent) {
	if event.Group != domain.HighlightDecorationGroup {
		return
	}
	h, err := d.store.Get(event.DecorationID)
	if err != nil {
		d.logger.Debug("Ignoring tap on stale decoration", "decoration_id", event.DecorationID)
		return
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.armed != nil {
		d.logger.Debug("Superseding pending highlight actions", "token", d.armed.token, "highlight_id", d.armed.highlightID)
	}
	d.nextToken++
	d.armed = &armedActivation{token: d.nextToken, highlightID: h.ID}
	menu := domain.ActionMenu{
		Token:       d.nextToken,
		HighlightID: h.ID,
		Colors:      append([]domain.HighlightColor{}, d.palette...),
		Actions:     []domain.HighlightAction{domain.HighlightActionDelete, domain.HighlightActionChangeColor},
	}
	d.presenter.PresentActions(menu)
	d.mu.Unlock()
}

// Resolve applies the host's choice for the activation identified by token.
// A token that is not the armed one is a no-op.
func (d *DecorationSynchronizer) Resolve(token uint64, action domain.HighlightAction, color *domain.HighlightColor) error {
	switch action {
	case domain.HighlightActionDelete:
	case domain.HighlightActionChangeColor:
		if color == nil || !color.Valid() {
			return apperrors.NewValidationError("invalid highlight action", "change_color requires a palette color")
		}
	default:
		return apperrors.NewValidationError("invalid highlight action", string(action))
	}

	d.mu.Lock()
	if d.armed == nil || d.armed.token != token {
		d.mu.Unlock()
		d.logger.Debug("Dropping superseded highlight action", "token", token, "action", string(action))
		return nil
	}
	highlightID := d.armed.highlightID
	d.armed = nil
	d.mu.Unlock()

	if action == domain.HighlightActionDelete {
		return d.mutator.DeleteHighlight(highlightID)
	}
	return d.mutator.RecolorHighlight(highlightID, *color)
}

// Disarm voids the pending activation, if any.
func (d *DecorationSynchronizer) Disarm() {
	d.mu.Lock()
	d.armed = nil
	d.mu.Unlock()
}
