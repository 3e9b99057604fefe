package domain

import (
	"strconv"
	"strings"
)

// LocatorText is the excerpt surrounding a position.
type LocatorText struct {
	Before    *string `json:"before,omitempty"`
	Highlight *string `json:"highlight,omitempty"`
	After     *string `json:"after,omitempty"`
}

// Locations pins a Locator inside its resource and inside the whole document.
type Locations struct {
	Position         *int     `json:"position,omitempty"`
	Progression      *float64 `json:"progression,omitempty"`
	TotalProgression *float64 `json:"totalProgression,omitempty"`
}

// Locator describes a position within a document.
type Locator struct {
	Href      string       `json:"href"`
	MediaType string       `json:"type"`
	Title     *string      `json:"title,omitempty"`
	Text      *LocatorText `json:"text,omitempty"`
	Locations *Locations   `json:"locations,omitempty"`
}

// Validate checks the progression invariants.
func (l *Locator) Validate() error {
	if strings.TrimSpace(l.Href) == "" {
		return &ValidationError{Field: "href", Message: "href is required"}
	}
	if l.Locations == nil {
		return nil
	}
	if p := l.Locations.Progression; p != nil && (*p < 0 || *p > 1) {
		return &ValidationError{Field: "progression", Message: "progression must be between 0 and 1"}
	}
	if p := l.Locations.TotalProgression; p != nil && (*p < 0 || *p > 1) {
		return &ValidationError{Field: "totalProgression", Message: "total progression must be between 0 and 1"}
	}
	if p := l.Locations.Position; p != nil && *p < 0 {
		return &ValidationError{Field: "position", Message: "position cannot be negative"}
	}
	return nil
}

// TotalProgression returns the document-wide progression, if known.
func (l *Locator) TotalProgression() *float64 {
	if l == nil || l.Locations == nil || l.Locations.TotalProgression == nil {
		return nil
	}
	v := *l.Locations.TotalProgression
	return &v
}

// Fingerprint is the structural key used to decide whether a navigation is
// redundant. It covers href and locations only; title and text excerpts are
// deliberately left out.
func (l *Locator) Fingerprint() string {
	if l == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(l.Href)
	b.WriteByte('|')
	if loc := l.Locations; loc != nil {
		if loc.Position != nil {
			b.WriteString(strconv.Itoa(*loc.Position))
		}
		b.WriteByte('|')
		writeFloat(&b, loc.Progression)
		b.WriteByte('|')
		writeFloat(&b, loc.TotalProgression)
	} else {
		b.WriteString("||")
	}
	return b.String()
}

func writeFloat(b *strings.Builder, v *float64) {
	if v == nil {
		return
	}
	b.WriteString(strconv.FormatFloat(*v, 'g', -1, 64))
}

// Link is a navigation reference, such as a table of contents entry.
type Link struct {
	Href      string `json:"href"`
	MediaType string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Children  []Link `json:"children,omitempty"`
}

// TocEntry is a table of contents entry.
type TocEntry = Link

// NavigationCommand instructs a navigator to move to Locator.
type NavigationCommand struct {
	Locator  Locator
	Animated bool
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
