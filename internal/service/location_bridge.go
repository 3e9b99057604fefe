package service

import (
	"context"
	"sync"

	"reading-bridge/internal/codec"
	"reading-bridge/internal/domain"
)

// Reconcile decides whether a host-supplied position requires navigation.
// It returns nil when desired is absent, undecodable, or structurally equal
// to current. The decode error, if any, is returned alongside the nil
// command for logging; it never requires navigation.
func Reconcile(desired []byte, current *domain.Locator, resolver domain.LinkResolver) (*domain.NavigationCommand, error) {
	if codec.IsAbsent(desired) {
		return nil, nil
	}
	locator, err := codec.DecodeLocation(desired, resolver)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Fingerprint() == locator.Fingerprint() {
		return nil, nil
	}
	return &domain.NavigationCommand{Locator: *locator, Animated: true}, nil
}

// LocationBridge connects host position requests with a document navigator
// and forwards engine position changes to the host.
type LocationBridge struct {
	navigator domain.Navigator
	listener  domain.SessionListener
	logger    domain.Logger

	mu   sync.Mutex
	stop func()
}

func NewLocationBridge(navigator domain.Navigator, listener domain.SessionListener, logger domain.Logger) *LocationBridge {
	return &LocationBridge{
		navigator: navigator,
		listener:  listener,
		logger:    logger,
	}
}

// Attach starts forwarding every engine position change to the listener.
func (b *LocationBridge) Attach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return
	}
	b.stop = b.navigator.ObservePositions(b.listener.OnPositionChanged)
}

// Detach stops forwarding position changes.
func (b *LocationBridge) Detach() {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Apply reconciles desired against the navigator's current location and
// navigates when needed. Undecodable positions are logged and treated as
// absent. It reports whether navigation happened.
func (b *LocationBridge) Apply(ctx context.Context, desired []byte) (bool, error) {
	cmd, err := Reconcile(desired, b.navigator.CurrentLocation(), b.navigator)
	if err != nil {
		b.logger.Warn("Ignoring unusable desired position", "reason", err.Error())
		return false, nil
	}
	if cmd == nil {
		b.logger.Debug("Desired position already current")
		return false, nil
	}
	if err := b.navigator.Go(ctx, cmd.Locator, cmd.Animated); err != nil {
		return false, err
	}
	b.logger.Debug("Navigated to desired position", "href", cmd.Locator.Href)
	return true, nil
}
