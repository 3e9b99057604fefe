package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"reading-bridge/internal/codec"
	"reading-bridge/internal/domain"

	"github.com/supabase-community/postgrest-go"
)

// HighlightRepository implements the domain.HighlightRepository interface using Supabase.
type HighlightRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

func NewHighlightRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) domain.HighlightRepository {
	return &HighlightRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *HighlightRepository) Upsert(highlight *domain.Highlight, token string) error {
	client, err := r.supabaseClient.GetClientWithToken(token)
	if err != nil {
		return fmt.Errorf("failed to get client with token: %w", err)
	}
	if client == nil {
		return fmt.Errorf("supabase client not initialized")
	}

	row, err := highlightToRow(highlight)
	if err != nil {
		return err
	}

	_, _, err = client.From("highlights").
		Upsert(row, "id", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to upsert highlight: %w", err)
	}
	return nil
}

func (r *HighlightRepository) ListByBook(bookID string, token string) ([]*domain.Highlight, error) {
	client, err := r.supabaseClient.GetClientWithToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to get client with token: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("supabase client not initialized")
	}

	data, _, err := client.From("highlights").
		Select("*", "", false).
		Eq("book_id", bookID).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list highlights: %w", err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	out := make([]*domain.Highlight, 0, len(rows))
	for _, row := range rows {
		h, err := mapToHighlight(row)
		if err != nil {
			r.logger.Warn("Skipping unreadable highlight row", "book_id", bookID, "reason", err.Error())
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (r *HighlightRepository) Delete(highlightID string, token string) error {
	client, err := r.supabaseClient.GetClientWithToken(token)
	if err != nil {
		return fmt.Errorf("failed to get client with token: %w", err)
	}
	if client == nil {
		return fmt.Errorf("supabase client not initialized")
	}

	_, _, err = client.From("highlights").
		Delete("", "").
		Eq("id", highlightID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete highlight: %w", err)
	}
	return nil
}

func highlightToRow(h *domain.Highlight) (map[string]interface{}, error) {
	locator, err := codec.EncodeLocator(h.Locator)
	if err != nil {
		return nil, fmt.Errorf("failed to encode locator: %w", err)
	}
	row := map[string]interface{}{
		"id":         h.ID,
		"book_id":    h.BookID,
		"locator":    json.RawMessage(locator),
		"color":      int(h.Color),
		"created_at": h.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if h.Progression != nil {
		row["progression"] = *h.Progression
	}
	return row, nil
}

func mapToHighlight(data map[string]interface{}) (*domain.Highlight, error) {
	rawLocator, err := json.Marshal(data["locator"])
	if err != nil {
		return nil, fmt.Errorf("failed to read locator: %w", err)
	}
	locator, err := codec.DecodeLocator(rawLocator)
	if err != nil {
		return nil, err
	}

	h := &domain.Highlight{
		ID:      getString(data, "id"),
		BookID:  getString(data, "book_id"),
		Locator: *locator,
		Color:   domain.ColorYellow,
	}

	switch v := data["color"].(type) {
	case float64:
		h.Color = domain.ColorOrDefault(int(v))
	case int:
		h.Color = domain.ColorOrDefault(v)
	case int64:
		h.Color = domain.ColorOrDefault(int(v))
	}

	switch v := data["progression"].(type) {
	case float64:
		h.Progression = domain.Float64(v)
	case float32:
		h.Progression = domain.Float64(float64(v))
	}

	if createdAt := getString(data, "created_at"); createdAt != "" {
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			h.CreatedAt = t
		} else if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			h.CreatedAt = t
		}
	}

	if h.ID == "" {
		return nil, fmt.Errorf("highlight row has no id")
	}
	return h, nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
