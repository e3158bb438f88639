package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrEmptyDocument = errors.New("empty document")

// Extractor turns PDF bytes into ordered page texts.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// ExtractPages returns one plain-text entry per page, in page order. Pages
// without a content stream yield an empty string so numbering stays aligned.
func (e *Extractor) ExtractPages(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse pdf failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ExtractText reads the entire content of r and joins the text of all pages.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	pages, err := New().ExtractPages(b)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n"), nil
}
