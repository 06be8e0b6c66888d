package chunk

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts plain text from a PDF paper, page by page, so the
// resulting Document carries accurate page→offset bookkeeping.
type PDFExtractor struct{}

func (PDFExtractor) Extract(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("chunk: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	var breaks []int
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("chunk: extract page %d of %s: %w", i, path, err)
		}
		if i > 1 {
			breaks = append(breaks, sb.Len())
		}
		sb.WriteString(text)
	}
	return Document{Text: sb.String(), PageBreaks: breaks}, nil
}
