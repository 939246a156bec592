package processors

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/athapong/fingraph/pkg/graph"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

// DocumentID derives a stable id from content, so re-ingesting the same
// bytes maps onto the same document.
func DocumentID(content []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, content).String()
}

// TextLoader loads plain text and markdown as-is. Loaders leave the
// timestamp zero when the content does not carry one.
type TextLoader struct{}

// NewTextLoader creates a new instance of TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load implements graph.DocumentLoader.
func (l *TextLoader) Load(ctx context.Context, name string, content []byte) (graph.RawDocument, error) {
	return graph.RawDocument{
		ID:       DocumentID(content),
		Text:     string(content),
		Metadata: graph.Metadata{Origin: name},
	}, nil
}

// SupportedTypes returns the MIME types supported by the TextLoader.
func (l *TextLoader) SupportedTypes() []string {
	return []string{"text/plain", "text/markdown"}
}

// HTMLLoader is responsible for loading HTML content.
type HTMLLoader struct{}

// NewHTMLLoader creates a new instance of HTMLLoader.
func NewHTMLLoader() *HTMLLoader {
	return &HTMLLoader{}
}

// Load parses the HTML content, reads author and publication time from the
// meta tags and converts the body to markdown text.
func (l *HTMLLoader) Load(ctx context.Context, name string, content []byte) (graph.RawDocument, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return graph.RawDocument{}, errors.Wrap(err, "failed to create document from HTML content")
	}

	meta := graph.Metadata{Origin: name}
	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		meta.Sender = strings.TrimSpace(author)
	}
	if published, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(published)); err == nil {
			meta.Timestamp = t.UTC()
		}
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta.Extra = map[string]string{"title": title}
	}

	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(body.Text())
	if html, err := body.Html(); err == nil {
		if md, err := htmltomarkdown.ConvertString(html); err == nil && strings.TrimSpace(md) != "" {
			text = strings.TrimSpace(md)
		}
	}

	return graph.RawDocument{ID: DocumentID(content), Text: text, Metadata: meta}, nil
}

// SupportedTypes returns the MIME types supported by the HTMLLoader.
func (l *HTMLLoader) SupportedTypes() []string {
	return []string{"text/html"}
}

// PDFLoader extracts the plain text of every page.
type PDFLoader struct{}

func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

func (l *PDFLoader) Load(ctx context.Context, name string, content []byte) (graph.RawDocument, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return graph.RawDocument{}, errors.Wrap(err, "open pdf")
	}

	var text strings.Builder
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		p := r.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	return graph.RawDocument{
		ID:       DocumentID(content),
		Text:     strings.TrimSpace(text.String()),
		Metadata: graph.Metadata{Origin: name},
	}, nil
}

func (l *PDFLoader) SupportedTypes() []string {
	return []string{"application/pdf"}
}

// LoaderFor picks a loader by file extension.
func LoaderFor(path string) (graph.DocumentLoader, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".eml":
		return NewTextLoader(), true
	case ".html", ".htm":
		return NewHTMLLoader(), true
	case ".pdf":
		return NewPDFLoader(), true
	}
	return nil, false
}

// LoadFile reads path with the loader matching its extension. The file's
// modification time becomes the document timestamp when the content has none.
func LoadFile(ctx context.Context, path string) (graph.RawDocument, error) {
	loader, ok := LoaderFor(path)
	if !ok {
		return graph.RawDocument{}, errors.Errorf("unsupported file type: %s", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return graph.RawDocument{}, errors.Wrapf(err, "read %s", path)
	}
	doc, err := loader.Load(ctx, filepath.Base(path), content)
	if err != nil {
		return graph.RawDocument{}, errors.Wrapf(err, "load %s", path)
	}
	if info, err := os.Stat(path); err == nil && doc.Metadata.Timestamp.IsZero() {
		doc.Metadata.Timestamp = info.ModTime().UTC()
	}
	return doc, nil
}
