package engine

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"reading-bridge/internal/domain"
)

const (
	maxPageChars  = 2600
	plainTextType = "text/plain"
	markdownType  = "text/markdown"
)

// parsePlainText paginates a text or markdown file into fixed pages. Each
// page is addressed as "/page/N".
func parsePlainText(name string, data []byte) (*publication, []domain.Link) {
	ext := filepath.Ext(name)
	mediaType := plainTextType
	if strings.EqualFold(ext, ".md") {
		mediaType = markdownType
	}
	title := strings.TrimSpace(strings.TrimSuffix(filepath.Base(name), ext))

	text := strings.TrimSpace(string(bytes.ToValidUTF8(data, []byte{})))
	pages := paginateParagraphs(splitIntoParagraphs(text), maxPageChars)
	if len(pages) == 0 {
		pages = []string{""}
	}

	pub := &publication{
		Title:     title,
		Resources: make([]resource, 0, len(pages)),
	}
	var toc []domain.Link
	for i, page := range pages {
		href := fmt.Sprintf("/page/%d", i+1)
		pub.Resources = append(pub.Resources, resource{
			Href:      href,
			MediaType: mediaType,
			Title:     fmt.Sprintf("Page %d", i+1),
			Text:      page,
		})
		for _, para := range strings.Split(page, "\n\n") {
			if heading := headingText(para, mediaType); heading != "" {
				toc = append(toc, domain.Link{Href: href, MediaType: mediaType, Title: heading})
			}
		}
	}
	if len(toc) == 0 {
		toc = []domain.Link{{Href: pub.Resources[0].Href, MediaType: mediaType, Title: title}}
	}
	return pub, toc
}

func splitIntoParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var result []string
	for _, para := range strings.Split(text, "\n\n") {
		// Single newlines inside a paragraph are soft wraps
		para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))
		if para != "" {
			result = append(result, para)
		}
	}
	return result
}

func paginateParagraphs(paragraphs []string, maxChars int) []string {
	var pages []string
	var sb strings.Builder

	flush := func() {
		pages = append(pages, strings.TrimSpace(sb.String()))
		sb.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// An oversized paragraph gets a page of its own.
		if sb.Len() == 0 && len(para) > maxChars {
			pages = append(pages, para)
			continue
		}
		if sb.Len() > 0 && sb.Len()+2+len(para) > maxChars {
			flush()
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(para)
	}

	if sb.Len() > 0 {
		flush()
	}
	return pages
}

// headingText returns the heading carried by para, or "". Markdown headings
// are explicit; plain text uses the short, all-caps line heuristic.
func headingText(para, mediaType string) string {
	para = strings.TrimSpace(para)
	if para == "" || strings.Contains(para, "\n") {
		return ""
	}
	if mediaType == markdownType {
		if strings.HasPrefix(para, "#") {
			return strings.TrimSpace(strings.TrimLeft(para, "#"))
		}
		return ""
	}
	if len(para) < 100 && len(para) > 3 && para == strings.ToUpper(para) && strings.ToLower(para) != para {
		return para
	}
	return ""
}
