package codec

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

//go:embed highlight.schema.json
var highlightSchemaSource string

var (
	highlightSchemaOnce sync.Once
	highlightSchema     *jsonschema.Schema
	highlightSchemaErr  error
)

func compiledHighlightSchema() (*jsonschema.Schema, error) {
	highlightSchemaOnce.Do(func() {
		highlightSchema, highlightSchemaErr = jsonschema.CompileString("highlight.schema.json", highlightSchemaSource)
	})
	return highlightSchema, highlightSchemaErr
}

// DecodeHighlight decodes one highlight record. Only locator and its href are
// mandatory; every other field falls back to a default. A missing id gets a
// fresh one and progression is taken from the locator.
func DecodeHighlight(raw []byte, now time.Time) (*domain.Highlight, error) {
	root, err := parseObject(raw)
	if err != nil {
		return nil, err
	}
	if err := validateHighlightShape(raw); err != nil {
		return nil, err
	}
	return highlightFromResult(root, now)
}

// DecodeHighlights decodes an array of highlight records, skipping entries
// that fail to decode. The returned error joins the per-entry failures.
func DecodeHighlights(raw []byte, now time.Time) ([]domain.Highlight, error) {
	if IsAbsent(raw) {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, apperrors.NewParseError("highlights payload is not valid JSON", nil)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return nil, apperrors.NewParseError("highlights payload must be an array", nil)
	}

	var (
		out  []domain.Highlight
		errs []error
	)
	root.ForEach(func(key, entry gjson.Result) bool {
		h, err := DecodeHighlight([]byte(entry.Raw), now)
		if err != nil {
			errs = append(errs, fmt.Errorf("highlight %d: %w", key.Int(), err))
			return true
		}
		out = append(out, *h)
		return true
	})
	return out, errors.Join(errs...)
}

// EncodeHighlight serializes a highlight to its wire shape.
func EncodeHighlight(h domain.Highlight) ([]byte, error) {
	return json.Marshal(h)
}

func validateHighlightShape(raw []byte) error {
	schema, err := compiledHighlightSchema()
	if err != nil {
		return apperrors.NewInternalError("highlight schema unavailable", err)
	}
	var instance interface{}
	if err := json.Unmarshal(raw, &instance); err != nil {
		return apperrors.NewParseError("highlight is not valid JSON", err)
	}
	if err := schema.Validate(instance); err != nil {
		return apperrors.NewParseError("highlight does not match schema", err)
	}
	return nil
}

func highlightFromResult(root gjson.Result, now time.Time) (*domain.Highlight, error) {
	locator, err := locatorFromResult(root.Get("locator"))
	if err != nil {
		return nil, err
	}

	h := &domain.Highlight{
		ID:          stringField(root, "id"),
		BookID:      stringField(root, "bookId"),
		Locator:     *locator,
		Color:       domain.ColorYellow,
		CreatedAt:   now,
		Progression: locator.TotalProgression(),
	}
	if h.ID == "" {
		h.ID = domain.NewHighlightID()
	}
	if color := root.Get("color"); color.Type == gjson.Number {
		h.Color = domain.ColorOrDefault(int(color.Int()))
	}
	if createdAt := stringField(root, "createdAt"); createdAt != "" {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			h.CreatedAt = t
		} else if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			h.CreatedAt = t
		}
	}
	return h, nil
}
