package handler

import (
	"testing"

	"reading-bridge/internal/domain"

	"github.com/tidwall/gjson"
)

func TestEventFeed_SequencesEvents(t *testing.T) {
	feed := NewEventFeed(0, NewMockHandlerLogger())

	feed.OnTableOfContents([]domain.Link{{Href: "/c1", Title: "One"}})
	feed.OnPositionChanged(domain.Locator{Href: "/c1", MediaType: "application/xhtml+xml"})
	feed.OnHighlightDeleted("h1")
	feed.OnSearchFailed("search")
	feed.OnHighlightActionsPresented(domain.ActionMenu{
		Token:       3,
		HighlightID: "h2",
		Colors:      []domain.HighlightColor{domain.ColorRed},
		Actions:     []domain.HighlightAction{domain.HighlightActionDelete},
	})

	page := feed.After(0)
	events := page.Events
	if page.Last != 5 || len(events) != 5 || page.Oldest != 1 || page.Truncated {
		t.Fatalf("expected 5 events from seq 1, got %d (last %d, oldest %d, truncated %v)", len(events), page.Last, page.Oldest, page.Truncated)
	}

	checks := []struct {
		index int
		path  string
		want  string
	}{
		{0, "type", EventTableOfContents},
		{0, "payload.0.title", "One"},
		{1, "seq", "2"},
		{1, "payload.href", "/c1"},
		{2, "payload.id", "h1"},
		{3, "payload.errorKind", "search"},
		{4, "payload.token", "3"},
		{4, "payload.highlightId", "h2"},
		{4, "payload.actions.0", "delete"},
	}
	for _, c := range checks {
		if got := gjson.GetBytes(events[c.index], c.path).String(); got != c.want {
			t.Fatalf("event %d %s: expected %q, got %q (%s)", c.index, c.path, c.want, got, events[c.index])
		}
	}

	newer := feed.After(3).Events
	if len(newer) != 2 || gjson.GetBytes(newer[0], "seq").Int() != 4 {
		t.Fatalf("unexpected events after 3: %s", newer)
	}
}

func TestEventFeed_SearchResultsArray(t *testing.T) {
	feed := NewEventFeed(0, NewMockHandlerLogger())

	feed.OnSearchResultsChanged([]domain.Locator{
		{Href: "/c1", Text: &domain.LocatorText{Highlight: domain.String("whale")}},
		{Href: "/c2"},
	})
	feed.OnSearchResultsChanged(nil)

	events := feed.After(0).Events
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	results := gjson.GetBytes(events[0], "payload")
	if !results.IsArray() || len(results.Array()) != 2 {
		t.Fatalf("unexpected results payload: %s", events[0])
	}
	if results.Get("0.text.highlight").String() != "whale" {
		t.Fatalf("unexpected first result: %s", results.Get("0").Raw)
	}
	if empty := gjson.GetBytes(events[1], "payload"); !empty.IsArray() || len(empty.Array()) != 0 {
		t.Fatalf("expected empty results array, got %s", events[1])
	}
}

func TestEventFeed_Limit(t *testing.T) {
	feed := NewEventFeed(3, NewMockHandlerLogger())

	empty := feed.After(0)
	if len(empty.Events) != 0 || empty.Oldest != 1 || empty.Truncated {
		t.Fatalf("unexpected empty feed page: %+v", empty)
	}

	for i := 0; i < 5; i++ {
		feed.OnHighlightDeleted("h")
	}

	tests := []struct {
		name          string
		after         uint64
		wantEvents    int
		wantTruncated bool
	}{
		{"poller that fell behind", 0, 3, true},
		{"poller just behind the window", 1, 3, true},
		{"poller at the window edge", 2, 3, false},
		{"poller inside the window", 4, 1, false},
		{"poller up to date", 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := feed.After(tt.after)
			if page.Last != 5 || page.Oldest != 3 {
				t.Fatalf("expected last 5 oldest 3, got last %d oldest %d", page.Last, page.Oldest)
			}
			if len(page.Events) != tt.wantEvents {
				t.Fatalf("expected %d events, got %d", tt.wantEvents, len(page.Events))
			}
			if page.Truncated != tt.wantTruncated {
				t.Fatalf("expected truncated=%v, got %v", tt.wantTruncated, page.Truncated)
			}
		})
	}

	if seq := gjson.GetBytes(feed.After(0).Events[0], "seq").Int(); seq != 3 {
		t.Fatalf("expected the newest 3 events starting at seq 3, got %d", seq)
	}
}
