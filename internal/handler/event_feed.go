package handler

import (
	"encoding/json"
	"sync"

	"reading-bridge/internal/codec"
	"reading-bridge/internal/domain"

	"github.com/tidwall/sjson"
)

const defaultFeedLimit = 512

// Event types published on a session feed.
const (
	EventPositionChanged           = "positionChanged"
	EventTableOfContents           = "tableOfContents"
	EventHighlightCreated          = "highlightCreated"
	EventHighlightDeleted          = "highlightDeleted"
	EventHighlightActionsPresented = "highlightActionsPresented"
	EventSearchResultsChanged      = "searchResultsChanged"
	EventSearchFailed              = "searchFailed"
)

type feedEvent struct {
	seq uint64
	raw json.RawMessage
}

// EventFeed records the outbound notifications of one session as a
// sequence-numbered log that the host polls. Only the newest limit events
// are retained.
type EventFeed struct {
	limit  int
	logger domain.Logger

	mu     sync.Mutex
	seq    uint64
	events []feedEvent
}

func NewEventFeed(limit int, logger domain.Logger) *EventFeed {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &EventFeed{limit: limit, logger: logger}
}

// FeedPage is one poll of an EventFeed.
type FeedPage struct {
	Events []json.RawMessage `json:"events"`
	// Last is the latest sequence number ever issued.
	Last uint64 `json:"last"`
	// Oldest is the sequence number of the oldest retained event, or
	// Last+1 when nothing is retained.
	Oldest uint64 `json:"oldest"`
	// Truncated is set when events after the requested sequence number
	// were already dropped from the feed.
	Truncated bool `json:"truncated"`
}

// After returns the retained events with a sequence number greater than after.
func (f *EventFeed) After(after uint64) FeedPage {
	f.mu.Lock()
	defer f.mu.Unlock()

	page := FeedPage{
		Events: make([]json.RawMessage, 0, len(f.events)),
		Last:   f.seq,
		Oldest: f.seq + 1,
	}
	if len(f.events) > 0 {
		page.Oldest = f.events[0].seq
	}
	for _, e := range f.events {
		if e.seq > after {
			page.Events = append(page.Events, e.raw)
		}
	}
	page.Truncated = after+1 < page.Oldest
	return page
}

func (f *EventFeed) OnPositionChanged(locator domain.Locator) {
	payload, err := codec.EncodeLocator(locator)
	f.record(EventPositionChanged, payload, err)
}

func (f *EventFeed) OnTableOfContents(toc []domain.Link) {
	payload, err := codec.EncodeLinks(toc)
	f.record(EventTableOfContents, payload, err)
}

func (f *EventFeed) OnHighlightCreated(highlight domain.Highlight) {
	payload, err := codec.EncodeHighlight(highlight)
	f.record(EventHighlightCreated, payload, err)
}

func (f *EventFeed) OnHighlightDeleted(id string) {
	payload, err := sjson.SetBytes([]byte(`{}`), "id", id)
	f.record(EventHighlightDeleted, payload, err)
}

func (f *EventFeed) OnHighlightActionsPresented(menu domain.ActionMenu) {
	payload, err := json.Marshal(menu)
	f.record(EventHighlightActionsPresented, payload, err)
}

func (f *EventFeed) OnSearchResultsChanged(results []domain.Locator) {
	payload := []byte(`[]`)
	for _, locator := range results {
		encoded, err := codec.EncodeLocator(locator)
		if err != nil {
			f.record(EventSearchResultsChanged, nil, err)
			return
		}
		if payload, err = sjson.SetRawBytes(payload, "-1", encoded); err != nil {
			f.record(EventSearchResultsChanged, nil, err)
			return
		}
	}
	f.record(EventSearchResultsChanged, payload, nil)
}

func (f *EventFeed) OnSearchFailed(errorKind string) {
	payload, err := sjson.SetBytes([]byte(`{}`), "errorKind", errorKind)
	f.record(EventSearchFailed, payload, err)
}

func (f *EventFeed) record(eventType string, payload []byte, err error) {
	if err != nil {
		f.logger.Error("Failed to encode session event", err, "type", eventType)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	seq := f.seq + 1
	raw, err := sjson.SetBytes([]byte(`{}`), "seq", seq)
	if err == nil {
		raw, err = sjson.SetBytes(raw, "type", eventType)
	}
	if err == nil {
		raw, err = sjson.SetRawBytes(raw, "payload", payload)
	}
	if err != nil {
		f.logger.Error("Failed to encode session event", err, "type", eventType)
		return
	}

	f.seq = seq
	f.events = append(f.events, feedEvent{seq: seq, raw: raw})
	if len(f.events) > f.limit {
		f.events = append([]feedEvent(nil), f.events[len(f.events)-f.limit:]...)
	}
}
