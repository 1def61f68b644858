// Package extractor parses PDF byte streams into an ordered sequence of
// pages, each carrying text, embedded images, and page dimensions, plus
// document-level metadata. Grounded on bbiangul-go-reason's parser/pdf.go
// (github.com/ledongthuc/pdf page/XObject walking) since the teacher has no
// PDF extraction of its own; image extraction shape (raw bytes + first
// bounding rect per image) is supplemented from original_source's
// extractor.py, which uses PyMuPDF for the same contract.
package extractor

import (
	"bytes"
	"errors"

	"github.com/ledongthuc/pdf"

	"github.com/Ace-Of-Snakes/agent-rag-env/internal/apperr"
)

var (
	errNoStreamLength        = errors.New("extractor: stream has no length")
	errNilStreamData         = errors.New("extractor: stream value has nil data")
	errNilReader             = errors.New("extractor: stream value has nil reader")
	errNotReaderAt           = errors.New("extractor: reader field is not io.ReaderAt")
	errInsufficientImageData = errors.New("extractor: insufficient data for declared image dimensions")
	errUnsupportedColorSpace = errors.New("extractor: unsupported image color space")
)

// Image is one embedded image extracted from a page. This extractor does
// not resolve where an image is placed on the page, so Rect is always nil.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Rect     *Rect // never set by this extractor
}

// Rect is an image's bounding box in PDF user-space coordinates
// (origin bottom-left), matching original_source's (x0, y0, x1, y1) tuple.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Area returns the rectangle's area.
func (r Rect) Area() float64 {
	return (r.X1 - r.X0) * (r.Y1 - r.Y0)
}

// Page is the content extracted from a single 1-indexed page.
type Page struct {
	PageNumber int
	Text       string
	Images     []Image
	Width      float64
	Height     float64
}

// Document is the complete content extracted from a PDF.
type Document struct {
	Pages    []Page
	Metadata map[string]string
}

// FullText concatenates every page's text, skipping empty pages, matching
// original_source DocumentContent.full_text.
func (d Document) FullText() string {
	var buf bytes.Buffer
	first := true
	for _, p := range d.Pages {
		if p.Text == "" {
			continue
		}
		if !first {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p.Text)
		first = false
	}
	return buf.String()
}

// ExtractFromBytes parses a PDF from an in-memory byte slice. An unreadable
// file is a fatal DocumentProcessing error, matching spec's extractor
// failure mode.
func ExtractFromBytes(data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &apperr.Error{
			Op:      "extractor.ExtractFromBytes",
			Kind:    apperr.KindDocumentProcessing,
			Message: "unreadable PDF",
			Err:     err,
		}
	}

	totalPages := reader.NumPage()
	pages := make([]Page, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageText(page)
		if err != nil {
			// Skip pages that fail to extract rather than abort the
			// document, matching the Go reference parser's per-page
			// resilience.
			continue
		}

		pages = append(pages, Page{
			PageNumber: i,
			Text:       text,
			Images:     extractPageImages(page),
			Width:      pageWidth(page),
			Height:     pageHeight(page),
		})
	}

	return &Document{
		Pages:    pages,
		Metadata: extractMetadata(reader),
	}, nil
}

func pageWidth(page pdf.Page) float64 {
	v := page.V.Key("MediaBox")
	if v.Len() != 4 {
		return 0
	}
	return v.Index(2).Float64() - v.Index(0).Float64()
}

func pageHeight(page pdf.Page) float64 {
	v := page.V.Key("MediaBox")
	if v.Len() != 4 {
		return 0
	}
	return v.Index(3).Float64() - v.Index(1).Float64()
}

func extractMetadata(reader *pdf.Reader) map[string]string {
	meta := map[string]string{}
	trailer := reader.Trailer()
	info := trailer.Key("Info")
	if info.IsNull() {
		return meta
	}
	for _, key := range []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer", "CreationDate", "ModDate"} {
		if v := info.Key(key); !v.IsNull() {
			meta[lower(key)] = v.Text()
		}
	}
	return meta
}

func lower(s string) string {
	b := []byte(s)
	if len(b) > 0 && b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
