package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/revisehq/cardsmith/internal/domain"
)

// Extractor produces raw text for a page range of a document on disk.
// Page ranges are half-open and zero-based; emitted page markers are 1-based
// to match how people refer to pages.
type Extractor interface {
	PageCount(path string) (int, error)
	ExtractRange(path string, startPage, endPage int) (string, error)
}

var (
	hyphenBreak = regexp.MustCompile(`(\w)-\n(\w)`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
)

// PDFExtractor extracts text from PDF files.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", domain.ErrDocumentUnreadable, path, err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// ExtractRange returns the text of pages [startPage, endPage) separated by
// "=== PAGE n ===" markers. Empty pages are skipped; hyphenated line breaks
// are joined and space runs collapsed.
func (e *PDFExtractor) ExtractRange(path string, startPage, endPage int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", domain.ErrExtractionFailed, path, err)
	}
	defer f.Close()

	total := r.NumPage()
	if endPage > total {
		endPage = total
	}
	if startPage < 0 || startPage >= endPage {
		return "", fmt.Errorf("%w: page range [%d,%d) out of bounds for %d pages",
			domain.ErrExtractionFailed, startPage, endPage, total)
	}

	var b strings.Builder
	for i := startPage; i < endPage; i++ {
		// ledongthuc/pdf pages are 1-based.
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d of %s: %v", domain.ErrExtractionFailed, i+1, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\n=== PAGE %d ===\n", i+1)
		b.WriteString(text)
	}

	return CleanText(b.String()), nil
}

// CleanText joins words broken across lines by hyphenation and collapses
// runs of spaces and tabs.
func CleanText(text string) string {
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
