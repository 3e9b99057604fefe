package engine

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"
)

const excerptChars = 48

// searchIterator walks the resources of a document in reading order and
// returns matches page by page.
type searchIterator struct {
	doc      *document
	pattern  *regexp.Regexp
	pageSize int

	mu       sync.Mutex
	resource int
	offset   int
	closed   bool
}

func newSearchIterator(doc *document, query string, pageSize int) (*searchIterator, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewSearchError("empty query", nil)
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return nil, apperrors.NewSearchError("invalid query", err)
	}
	return &searchIterator{doc: doc, pattern: pattern, pageSize: pageSize}, nil
}

// Next returns up to pageSize matches, or nil once every resource has been
// searched.
func (it *searchIterator) Next(ctx context.Context) ([]domain.Locator, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, apperrors.NewSearchError("iterator closed", nil)
	}

	var page []domain.Locator
	for it.resource < len(it.doc.resources) && len(page) < it.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := it.doc.resources[it.resource].Text
		loc := it.pattern.FindStringIndex(text[it.offset:])
		if loc == nil {
			it.resource++
			it.offset = 0
			continue
		}
		start, end := it.offset+loc[0], it.offset+loc[1]
		page = append(page, it.match(it.resource, text, start, end))
		it.offset = end
		if end == start {
			it.offset++
		}
	}
	return page, nil
}

func (it *searchIterator) Close() {
	it.mu.Lock()
	it.closed = true
	it.mu.Unlock()
}

func (it *searchIterator) match(idx int, text string, start, end int) domain.Locator {
	progression := 0.0
	if len(text) > 0 {
		progression = float64(start) / float64(len(text))
	}
	locator := it.doc.locatorAt(idx, progression)
	locator.Text = &domain.LocatorText{
		Before:    domain.String(excerptBefore(text, start)),
		Highlight: domain.String(text[start:end]),
		After:     domain.String(excerptAfter(text, end)),
	}
	return locator
}

func excerptBefore(text string, start int) string {
	from := start - excerptChars
	if from < 0 {
		from = 0
	}
	for from < start && !utf8.RuneStart(text[from]) {
		from++
	}
	return text[from:start]
}

func excerptAfter(text string, end int) string {
	to := end + excerptChars
	if to > len(text) {
		to = len(text)
	}
	for to > end && to < len(text) && !utf8.RuneStart(text[to]) {
		to--
	}
	return text[end:to]
}
