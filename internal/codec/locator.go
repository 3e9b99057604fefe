// Package codec converts between the loosely-typed wire shapes supplied by a
// host and the domain Locator, Link and Highlight types.
package codec

import (
	"bytes"
	"encoding/json"
	"strings"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"

	"github.com/tidwall/gjson"
)

// IsAbsent reports whether raw carries no location at all.
func IsAbsent(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeLocation normalizes a host position into a Locator. raw may be a full
// Locator (has "locations") or a link reference (has "children" or a fragment
// in its href). Links are resolved through resolver; a nil resolver yields a
// missing_context error.
func DecodeLocation(raw []byte, resolver domain.LinkResolver) (*domain.Locator, error) {
	root, err := parseObject(raw)
	if err != nil {
		return nil, err
	}

	href := root.Get("href")
	if href.Type != gjson.String || href.Str == "" {
		return nil, apperrors.NewParseError("location href is required", nil)
	}

	hasLocations := root.Get("locations").Exists()
	hasChildren := root.Get("children").Exists()
	hasFragment := strings.Contains(href.Str, "#")

	if (hasChildren || hasFragment) && !hasLocations {
		if resolver == nil {
			return nil, apperrors.NewMissingContextError("link location requires an open document")
		}
		link := linkFromResult(root)
		locator, ok := resolver.Locate(link)
		if !ok || locator == nil {
			return nil, apperrors.NewParseError("link does not resolve to a location", nil)
		}
		return locator, nil
	}

	return locatorFromResult(root)
}

// DecodeLocator decodes a full Locator, ignoring the link shape.
func DecodeLocator(raw []byte) (*domain.Locator, error) {
	root, err := parseObject(raw)
	if err != nil {
		return nil, err
	}
	return locatorFromResult(root)
}

// EncodeLocator serializes a Locator to its wire shape.
func EncodeLocator(locator domain.Locator) ([]byte, error) {
	return json.Marshal(locator)
}

// DecodeLink decodes a link reference with its children.
func DecodeLink(raw []byte) (*domain.Link, error) {
	root, err := parseObject(raw)
	if err != nil {
		return nil, err
	}
	link := linkFromResult(root)
	if link.Href == "" {
		return nil, apperrors.NewParseError("link href is required", nil)
	}
	return &link, nil
}

// EncodeLinks serializes a table of contents. A nil toc encodes as null.
func EncodeLinks(toc []domain.Link) ([]byte, error) {
	return json.Marshal(toc)
}

func parseObject(raw []byte) (gjson.Result, error) {
	if IsAbsent(raw) {
		return gjson.Result{}, apperrors.NewParseError("payload is empty", nil)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, apperrors.NewParseError("payload is not valid JSON", nil)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return gjson.Result{}, apperrors.NewParseError("payload must be an object", nil)
	}
	return root, nil
}

func locatorFromResult(root gjson.Result) (*domain.Locator, error) {
	locator := &domain.Locator{
		Href:      stringField(root, "href"),
		MediaType: stringField(root, "type"),
		Title:     optionalString(root, "title"),
	}

	if text := root.Get("text"); text.IsObject() {
		locator.Text = &domain.LocatorText{
			Before:    optionalString(text, "before"),
			Highlight: optionalString(text, "highlight"),
			After:     optionalString(text, "after"),
		}
	}

	if locations := root.Get("locations"); locations.IsObject() {
		locator.Locations = &domain.Locations{
			Progression:      optionalFloat(locations, "progression"),
			TotalProgression: optionalFloat(locations, "totalProgression"),
		}
		if position := locations.Get("position"); position.Type == gjson.Number {
			locator.Locations.Position = domain.Int(int(position.Int()))
		}
	}

	if err := locator.Validate(); err != nil {
		return nil, apperrors.NewParseError("invalid locator", err)
	}
	return locator, nil
}

func linkFromResult(root gjson.Result) domain.Link {
	link := domain.Link{
		Href:      stringField(root, "href"),
		MediaType: stringField(root, "type"),
		Title:     stringField(root, "title"),
	}
	children := root.Get("children")
	if children.IsArray() {
		children.ForEach(func(_, child gjson.Result) bool {
			if child.IsObject() {
				link.Children = append(link.Children, linkFromResult(child))
			}
			return true
		})
	}
	return link
}

func stringField(r gjson.Result, path string) string {
	if v := r.Get(path); v.Type == gjson.String {
		return v.Str
	}
	return ""
}

func optionalString(r gjson.Result, path string) *string {
	if v := r.Get(path); v.Type == gjson.String {
		return domain.String(v.Str)
	}
	return nil
}

func optionalFloat(r gjson.Result, path string) *float64 {
	if v := r.Get(path); v.Type == gjson.Number {
		return domain.Float64(v.Num)
	}
	return nil
}
