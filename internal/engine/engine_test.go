package engine

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockLogger struct{}

func (MockLogger) Info(msg string, args ...interface{})             {}
func (MockLogger) Debug(msg string, args ...interface{})            {}
func (MockLogger) Warn(msg string, args ...interface{})             {}
func (MockLogger) Error(msg string, err error, args ...interface{}) {}

type MockConfig struct {
	root     string
	maxSize  int64
	pageSize int
}

func (c *MockConfig) GetServerPort() string            { return "8080" }
func (c *MockConfig) GetLogLevel() string              { return "debug" }
func (c *MockConfig) GetSupabaseURL() string           { return "" }
func (c *MockConfig) GetSupabaseKey() string           { return "" }
func (c *MockConfig) GetDocumentRoot() string          { return c.root }
func (c *MockConfig) GetMaxDocumentSize() int64        { return c.maxSize }
func (c *MockConfig) GetSearchDebounce() time.Duration { return 0 }
func (c *MockConfig) GetSearchPageSize() int           { return c.pageSize }
func (c *MockConfig) GetAllowedOrigins() []string      { return nil }

type chapter struct {
	file  string
	title string
	body  string
}

var mobyChapters = []chapter{
	{file: "chapter1.xhtml", title: "Loomings", body: "<p>Call me Ishmael.</p><p>Some years ago, never mind how long, I thought I would see the watery part of the world. The whale was far.</p>"},
	{file: "chapter2.xhtml", title: "The Carpet-Bag", body: "<p>I stuffed a shirt or two into my old carpet-bag.</p><p>A WHALE ship was my Yale College and my Harvard.</p>"},
	{file: "chapter3.xhtml", title: "", body: "<h1>The Spouter-Inn</h1><p>Nothing about cetaceans here.</p>"},
}

func writeEPUB(t *testing.T, dir, name string, chapters []chapter) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	add := func(name, content string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	add("mimetype", "application/epub+zip")
	add("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`)

	var manifest, spine strings.Builder
	for i, ch := range chapters {
		fmt.Fprintf(&manifest, `<item id="c%d" href="%s" media-type="application/xhtml+xml"/>`, i, ch.file)
		fmt.Fprintf(&spine, `<itemref idref="c%d"/>`, i)
		head := ""
		if ch.title != "" {
			head = "<title>" + ch.title + "</title>"
		}
		add("OPS/"+ch.file, `<html xmlns="http://www.w3.org/1999/xhtml"><head>`+head+`</head><body>`+ch.body+`</body></html>`)
	}
	add("OPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier>urn:uuid:moby-dick</dc:identifier>
    <dc:title>Moby-Dick</dc:title>
    <dc:creator>Herman Melville</dc:creator>
  </metadata>
  <manifest>`+manifest.String()+`</manifest>
  <spine>`+spine.String()+`</spine>
</package>`)

	require.NoError(t, zw.Close())
}

func newTestEngine(t *testing.T, pageSize int) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	writeEPUB(t, dir, "moby.epub", mobyChapters)
	return NewEngine(&MockConfig{root: dir, maxSize: 1 << 20, pageSize: pageSize}, MockLogger{}), dir
}

func openMoby(t *testing.T, pageSize int) *reflowableDocument {
	t.Helper()
	e, _ := newTestEngine(t, pageSize)
	doc, err := e.Open(context.Background(), domain.DocumentRef{Path: "moby.epub"})
	require.NoError(t, err)
	t.Cleanup(func() { doc.Close() })
	reflowable, ok := doc.(*reflowableDocument)
	require.True(t, ok)
	return reflowable
}

func TestEngine_OpenEPUB(t *testing.T) {
	doc := openMoby(t, 10)

	assert.Equal(t, "urn:uuid:moby-dick", doc.BookID())
	assert.Equal(t, domain.LayoutReflowable, doc.Layout())
	assert.Nil(t, doc.CurrentLocation())

	toc := doc.TableOfContents()
	require.Len(t, toc, 3)
	assert.Equal(t, "/OPS/chapter1.xhtml", toc[0].Href)
	assert.Equal(t, "Loomings", toc[0].Title)
	assert.Equal(t, "The Spouter-Inn", toc[2].Title, "falls back to the first heading")

	var asDocument domain.Document = doc
	_, decorates := asDocument.(domain.Decorator)
	_, activates := asDocument.(domain.DecorationActivator)
	_, searches := asDocument.(domain.Searchable)
	assert.True(t, decorates)
	assert.True(t, activates)
	assert.True(t, searches)
}

func TestEngine_OpenHonoursRequestedBookID(t *testing.T) {
	e, _ := newTestEngine(t, 10)
	doc, err := e.Open(context.Background(), domain.DocumentRef{Path: "moby.epub", BookID: "B"})
	require.NoError(t, err)
	assert.Equal(t, "B", doc.BookID())
}

func TestEngine_OpenPlainText(t *testing.T) {
	e, dir := newTestEngine(t, 10)

	var sb strings.Builder
	sb.WriteString("CHAPTER ONE\n\n")
	for i := 0; i < 40; i++ {
		sb.WriteString(strings.Repeat("word ", 30))
		sb.WriteString("\n\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(sb.String()), 0o644))

	doc, err := e.Open(context.Background(), domain.DocumentRef{Path: "notes.txt"})
	require.NoError(t, err)

	assert.Equal(t, domain.LayoutFixed, doc.Layout())
	assert.True(t, strings.HasPrefix(doc.BookID(), "urn:uuid:"))
	_, decorates := doc.(domain.Decorator)
	assert.False(t, decorates)

	toc := doc.TableOfContents()
	require.Len(t, toc, 1)
	assert.Equal(t, "CHAPTER ONE", toc[0].Title)
	assert.Equal(t, "/page/1", toc[0].Href)

	fixed := doc.(*fixedDocument)
	assert.Greater(t, len(fixed.resources), 1)
	for _, r := range fixed.resources {
		assert.LessOrEqual(t, len(r.Text), maxPageChars)
	}

	// Same path, same id
	again, err := e.Open(context.Background(), domain.DocumentRef{Path: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, doc.BookID(), again.BookID())
}

func TestEngine_OpenFailures(t *testing.T) {
	e, dir := newTestEngine(t, 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.epub"), []byte("not a zip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "huge.txt"), make([]byte, 2<<20), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.epub"), 0o755))

	tests := []struct {
		name string
		path string
	}{
		{name: "empty path", path: ""},
		{name: "escapes root", path: "../moby.epub"},
		{name: "missing file", path: "absent.epub"},
		{name: "directory", path: "folder.epub"},
		{name: "too large", path: "huge.txt"},
		{name: "unsupported format", path: "cover.png"},
		{name: "corrupt epub", path: "broken.epub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := e.Open(context.Background(), domain.DocumentRef{Path: tt.path})
			assert.Nil(t, doc)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable), "got %v", err)
		})
	}
}

func TestEngine_OpenCapsDecompressedEPUB(t *testing.T) {
	e, dir := newTestEngine(t, 10)
	writeEPUB(t, dir, "bomb.epub", []chapter{
		{file: "chapter1.xhtml", title: "Loomings", body: "<p>" + strings.Repeat("whale ", 400000) + "</p>"},
	})
	info, err := os.Stat(filepath.Join(dir, "bomb.epub"))
	require.NoError(t, err)
	require.Less(t, info.Size(), int64(1<<20), "archive itself is under the limit")

	doc, err := e.Open(context.Background(), domain.DocumentRef{Path: "bomb.epub"})
	assert.Nil(t, doc)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, errInflatedTooLarge), "got %v", err)
}

func TestParseEPUB_BudgetSpansEntries(t *testing.T) {
	dir := t.TempDir()
	body := "<p>" + strings.Repeat("a", 4000) + "</p>"
	writeEPUB(t, dir, "three.epub", []chapter{
		{file: "c1.xhtml", body: body},
		{file: "c2.xhtml", body: body},
		{file: "c3.xhtml", body: body},
	})
	data, err := os.ReadFile(filepath.Join(dir, "three.epub"))
	require.NoError(t, err)

	// Each chapter fits on its own; together they do not.
	_, err = parseEPUB(data, 9000)
	assert.True(t, errors.Is(err, errInflatedTooLarge), "got %v", err)

	pub, err := parseEPUB(data, 0)
	require.NoError(t, err)
	assert.Len(t, pub.Resources, 3)
}

func TestDocument_GoNotifiesObserversInOrder(t *testing.T) {
	doc := openMoby(t, 10)

	var mu sync.Mutex
	var seen []string
	cancel := doc.ObservePositions(func(l domain.Locator) {
		mu.Lock()
		seen = append(seen, l.Href)
		mu.Unlock()
	})

	ctx := context.Background()
	require.NoError(t, doc.Go(ctx, domain.Locator{Href: "/OPS/chapter2.xhtml"}, true))
	require.NoError(t, doc.Go(ctx, domain.Locator{Href: "OPS/chapter1.xhtml", Locations: &domain.Locations{Progression: domain.Float64(0.5)}}, false))

	current := doc.CurrentLocation()
	require.NotNil(t, current)
	assert.Equal(t, "/OPS/chapter1.xhtml", current.Href)
	assert.Equal(t, 1, *current.Locations.Position)
	assert.InDelta(t, 0.5/3, *current.Locations.TotalProgression, 1e-9)
	assert.Equal(t, "Loomings", *current.Title)

	cancel()
	cancel()
	require.NoError(t, doc.Go(ctx, domain.Locator{Href: "/OPS/chapter3.xhtml"}, true))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/OPS/chapter2.xhtml", "/OPS/chapter1.xhtml"}, seen)
}

func TestDocument_GoRejectsUnknownResource(t *testing.T) {
	doc := openMoby(t, 10)

	err := doc.Go(context.Background(), domain.Locator{Href: "/OPS/missing.xhtml"}, true)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.Nil(t, doc.CurrentLocation())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, doc.Go(ctx, domain.Locator{Href: "/OPS/chapter1.xhtml"}, true), context.Canceled)
}

func TestDocument_Locate(t *testing.T) {
	doc := openMoby(t, 10)

	locator, ok := doc.Locate(domain.Link{Href: "/OPS/chapter2.xhtml#section", Title: "Bag"})
	require.True(t, ok)
	assert.Equal(t, "/OPS/chapter2.xhtml", locator.Href)
	assert.Equal(t, "Bag", *locator.Title)
	assert.Equal(t, 0.0, *locator.Locations.Progression)

	_, ok = doc.Locate(domain.Link{Href: "/OPS/nowhere.xhtml#x"})
	assert.False(t, ok)
}

func TestDocument_ClosedRefusesWork(t *testing.T) {
	doc := openMoby(t, 10)
	require.NoError(t, doc.Close())

	err := doc.Go(context.Background(), domain.Locator{Href: "/OPS/chapter1.xhtml"}, true)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable))
	_, err = doc.Search(context.Background(), "whale")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable))
}

func TestParagraphPagination(t *testing.T) {
	long := strings.Repeat("x", 30)
	tests := []struct {
		name       string
		paragraphs []string
		maxChars   int
		want       []string
	}{
		{
			name:       "fits on one page",
			paragraphs: []string{"a", "b"},
			maxChars:   10,
			want:       []string{"a\n\nb"},
		},
		{
			name:       "overflow starts a new page",
			paragraphs: []string{"aaaa", "bbbb", "cccc"},
			maxChars:   10,
			want:       []string{"aaaa\n\nbbbb", "cccc"},
		},
		{
			// Oversized paragraphs are never split
			name:       "oversized paragraph",
			paragraphs: []string{long, "tail"},
			maxChars:   10,
			want:       []string{long, "tail"},
		},
		{
			name:       "blank paragraphs skipped",
			paragraphs: []string{" ", ""},
			maxChars:   10,
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paginateParagraphs(tt.paragraphs, tt.maxChars))
		})
	}
}

func TestHeadingText(t *testing.T) {
	assert.Equal(t, "Intro", headingText("## Intro", markdownType))
	assert.Equal(t, "", headingText("Intro", markdownType))
	assert.Equal(t, "PART ONE", headingText("PART ONE", plainTextType))
	assert.Equal(t, "", headingText("Part one", plainTextType))
	assert.Equal(t, "", headingText("123", plainTextType))
}
