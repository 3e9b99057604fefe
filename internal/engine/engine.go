// Package engine is an in-process rendering engine. EPUB files open as
// reflowable documents with decoration support; text and markdown files
// open as paginated fixed-layout documents.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reading-bridge/internal/domain"
	apperrors "reading-bridge/pkg/errors"

	"github.com/google/uuid"
)

// Engine opens documents stored under a root directory.
type Engine struct {
	root     string
	maxSize  int64
	pageSize int
	logger   domain.Logger
}

func NewEngine(config domain.Config, logger domain.Logger) *Engine {
	return &Engine{
		root:     config.GetDocumentRoot(),
		maxSize:  config.GetMaxDocumentSize(),
		pageSize: config.GetSearchPageSize(),
		logger:   logger,
	}
}

// reflowableDocument adds decorations to a document.
type reflowableDocument struct {
	*document
	*decorationLayer
}

// fixedDocument is a paginated document without decorations.
type fixedDocument struct {
	*document
}

// Open loads ref.Path, relative to the engine root. Every failure is an
// engine_unavailable error.
func (e *Engine) Open(ctx context.Context, ref domain.DocumentRef) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewEngineUnavailableError("open cancelled", err)
	}

	fullPath, rel, err := e.resolve(ref.Path)
	if err != nil {
		return nil, apperrors.NewEngineUnavailableError("invalid document path", err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, apperrors.NewEngineUnavailableError("document not readable", err)
	}
	if info.IsDir() {
		return nil, apperrors.NewEngineUnavailableError("document not readable", fmt.Errorf("%s is a directory", rel))
	}
	if e.maxSize > 0 && info.Size() > e.maxSize {
		return nil, apperrors.NewEngineUnavailableError("document too large",
			fmt.Errorf("%d bytes exceeds the %d byte limit", info.Size(), e.maxSize))
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, apperrors.NewEngineUnavailableError("document not readable", err)
	}

	var doc domain.Document
	switch ext := strings.ToLower(filepath.Ext(fullPath)); ext {
	case ".epub":
		pub, err := parseEPUB(data, e.maxSize)
		if errors.Is(err, errInflatedTooLarge) {
			return nil, apperrors.NewEngineUnavailableError("document too large", err)
		}
		if err != nil {
			return nil, apperrors.NewEngineUnavailableError("failed to parse epub", err)
		}
		bookID := firstNonEmpty(ref.BookID, pub.Identifier, pathBookID(rel))
		doc = &reflowableDocument{
			document:        newDocument(bookID, domain.LayoutReflowable, pub, epubTableOfContents(pub), e.pageSize, e.logger),
			decorationLayer: newDecorationLayer(bookID, e.logger),
		}
	case ".txt", ".md":
		pub, toc := parsePlainText(rel, data)
		bookID := firstNonEmpty(ref.BookID, pathBookID(rel))
		doc = &fixedDocument{
			document: newDocument(bookID, domain.LayoutFixed, pub, toc, e.pageSize, e.logger),
		}
	default:
		return nil, apperrors.NewEngineUnavailableError("unsupported document format", fmt.Errorf("extension %q", ext))
	}

	e.logger.Info("Document opened", "path", rel, "book_id", doc.BookID(), "layout", doc.Layout())
	return doc, nil
}

// resolve confines path to the engine root.
func (e *Engine) resolve(path string) (string, string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", fmt.Errorf("path is required")
	}
	root, err := filepath.Abs(e.root)
	if err != nil {
		return "", "", err
	}
	full := filepath.Join(root, filepath.FromSlash(path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path escapes the document root")
	}
	return full, filepath.ToSlash(rel), nil
}

// epubTableOfContents lists the spine in reading order.
func epubTableOfContents(pub *publication) []domain.Link {
	toc := make([]domain.Link, 0, len(pub.Resources))
	for i, r := range pub.Resources {
		title := r.Title
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}
		toc = append(toc, domain.Link{Href: r.Href, MediaType: r.MediaType, Title: title})
	}
	return toc
}

// pathBookID derives a stable book id from the document path.
func pathBookID(rel string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("file:///"+rel)).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
