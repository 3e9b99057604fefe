package engine

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// resource is one readable unit of a document: an EPUB spine item or a page
// of a plain-text document.
type resource struct {
	Href      string
	MediaType string
	Title     string
	Text      string
}

type publication struct {
	Identifier string
	Title      string
	Author     string
	Resources  []resource
}

const defaultXHTMLType = "application/xhtml+xml"

// errInflatedTooLarge reports an archive whose entries decompress past the
// document size limit.
var errInflatedTooLarge = errors.New("decompressed epub exceeds the size limit")

// epubArchive reads zip entries against a shared decompression budget.
// A non-positive budget means no limit.
type epubArchive struct {
	zr        *zip.Reader
	remaining int64
	limited   bool
}

// parseEPUB reads the package document and every spine item of an EPUB
// archive. Spine items that are missing or empty are skipped. The total
// decompressed size of the entries read is capped at maxSize.
func parseEPUB(epubBytes []byte, maxSize int64) (*publication, error) {
	zr, err := zip.NewReader(bytes.NewReader(epubBytes), int64(len(epubBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	archive := &epubArchive{zr: zr, remaining: maxSize, limited: maxSize > 0}

	containerBytes, err := archive.readFile("META-INF/container.xml")
	if errors.Is(err, errInflatedTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("invalid epub (missing container.xml): %w", err)
	}

	opfPath, err := findOPFPath(containerBytes)
	if err != nil || strings.TrimSpace(opfPath) == "" {
		return nil, fmt.Errorf("invalid epub (missing package path)")
	}

	opfBytes, err := archive.readFile(opfPath)
	if errors.Is(err, errInflatedTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("invalid epub (missing package file): %w", err)
	}

	pkg := parseOPF(opfBytes)

	// Spine hrefs are relative to the OPF directory.
	opfDir := path.Dir(opfPath)
	if opfDir == "." {
		opfDir = ""
	}

	pub := &publication{
		Identifier: pkg.identifier,
		Title:      pkg.title,
		Author:     pkg.author,
		Resources:  make([]resource, 0, len(pkg.spine)),
	}
	for _, item := range pkg.spine {
		href := strings.TrimSpace(item.href)
		if href == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(href); err == nil && unescaped != "" {
			href = unescaped
		}
		full := path.Clean(path.Join(opfDir, href))
		b, err := archive.readFile(full)
		if errors.Is(err, errInflatedTooLarge) {
			return nil, err
		}
		if err != nil {
			continue
		}
		title, text := htmlToText(b)
		text = normalizeText(text)
		if text == "" {
			continue
		}
		mediaType := item.mediaType
		if mediaType == "" {
			mediaType = defaultXHTMLType
		}
		pub.Resources = append(pub.Resources, resource{
			Href:      "/" + full,
			MediaType: mediaType,
			Title:     strings.TrimSpace(title),
			Text:      text,
		})
	}

	if len(pub.Resources) == 0 {
		return nil, fmt.Errorf("invalid epub (no readable spine items)")
	}
	return pub, nil
}

func (a *epubArchive) readFile(name string) ([]byte, error) {
	for _, f := range a.zr.File {
		if f.Name == name {
			return a.open(f)
		}
	}
	lower := strings.ToLower(name)
	for _, f := range a.zr.File {
		if strings.ToLower(f.Name) == lower {
			return a.open(f)
		}
	}
	return nil, fmt.Errorf("file not found: %s", name)
}

// open inflates f. The declared size is checked first, then the stream is
// read through a limit one byte past the budget so a lying header is caught.
func (a *epubArchive) open(f *zip.File) ([]byte, error) {
	if a.limited && f.UncompressedSize64 > uint64(a.remaining) {
		return nil, fmt.Errorf("%s: %w", f.Name, errInflatedTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if a.limited {
		r = io.LimitReader(rc, a.remaining+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if a.limited {
		if int64(len(b)) > a.remaining {
			return nil, fmt.Errorf("%s: %w", f.Name, errInflatedTooLarge)
		}
		a.remaining -= int64(len(b))
	}
	return b, nil
}

func findOPFPath(containerXML []byte) (string, error) {
	type rootfile struct {
		FullPath string `xml:"full-path,attr"`
	}
	type rootfiles struct {
		Rootfiles []rootfile `xml:"rootfile"`
	}
	type container struct {
		Rootfiles rootfiles `xml:"rootfiles"`
	}

	var c container
	if err := xml.Unmarshal(containerXML, &c); err != nil {
		return "", err
	}
	for _, rf := range c.Rootfiles.Rootfiles {
		if strings.TrimSpace(rf.FullPath) != "" {
			return strings.TrimSpace(rf.FullPath), nil
		}
	}
	return "", fmt.Errorf("rootfile not found")
}

type spineItem struct {
	href      string
	mediaType string
}

type opfPackage struct {
	identifier string
	title      string
	author     string
	spine      []spineItem
}

// parseOPF reads metadata, manifest and spine, matching elements by local
// name so namespace prefixes do not matter.
func parseOPF(opf []byte) opfPackage {
	type manifestItem struct {
		href      string
		mediaType string
	}
	var pkg opfPackage
	manifest := map[string]manifestItem{}
	spineIDs := make([]string, 0, 64)

	dec := xml.NewDecoder(bytes.NewReader(opf))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(se.Name.Local) {
		case "identifier":
			if pkg.identifier == "" {
				pkg.identifier = strings.TrimSpace(readElementText(dec))
			}
		case "title":
			if pkg.title == "" {
				pkg.title = strings.TrimSpace(readElementText(dec))
			}
		case "creator":
			if pkg.author == "" {
				pkg.author = strings.TrimSpace(readElementText(dec))
			}
		case "item":
			var id string
			var item manifestItem
			for _, a := range se.Attr {
				switch strings.ToLower(a.Name.Local) {
				case "id":
					id = a.Value
				case "href":
					item.href = a.Value
				case "media-type":
					item.mediaType = a.Value
				}
			}
			if id != "" && item.href != "" {
				manifest[id] = item
			}
		case "itemref":
			for _, a := range se.Attr {
				if strings.ToLower(a.Name.Local) == "idref" && a.Value != "" {
					spineIDs = append(spineIDs, a.Value)
					break
				}
			}
		}
	}

	pkg.spine = make([]spineItem, 0, len(spineIDs))
	for _, id := range spineIDs {
		if item, ok := manifest[id]; ok {
			pkg.spine = append(pkg.spine, spineItem{href: item.href, mediaType: item.mediaType})
		}
	}
	return pkg
}

func readElementText(dec *xml.Decoder) string {
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.CharData:
			out.Write([]byte(t))
		case xml.EndElement:
			return out.String()
		}
	}
	return out.String()
}

// htmlToText returns the document title (the <title> element, else the first
// h1 or h2) and the block-separated body text.
func htmlToText(b []byte) (string, string) {
	doc, err := html.Parse(bytes.NewReader(b))
	if err != nil || doc == nil {
		return "", ""
	}

	block := map[string]bool{
		"p": true, "div": true, "section": true, "article": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"li": true, "ul": true, "ol": true, "blockquote": true,
	}
	skip := map[string]bool{
		"script": true, "style": true, "head": true, "title": true, "nav": true,
	}

	var title, heading string
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if (tag == "h1" || tag == "h2") && heading == "" {
				heading = nodeText(n)
			}
			if skip[tag] {
				if tag == "head" {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.Type == html.ElementNode && strings.ToLower(c.Data) == "title" && title == "" {
							title = nodeText(c)
						}
					}
				}
				return
			}
			if tag == "br" {
				sb.WriteString("\n")
			}
			if block[tag] {
				sb.WriteString("\n\n")
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") && !strings.HasSuffix(sb.String(), " ") {
					sb.WriteString(" ")
				}
				sb.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[strings.ToLower(n.Data)] {
			sb.WriteString("\n\n")
		}
	}
	walk(doc)

	if strings.TrimSpace(title) == "" {
		title = heading
	}
	return strings.Join(strings.Fields(title), " "), sb.String()
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			blank++
			if blank <= 2 {
				out = append(out, "")
			}
			continue
		}
		blank = 0
		out = append(out, t)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
