package prep

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

type pdfExtractor struct{}

var _ PDFExtractor = pdfExtractor{}

func (pdfExtractor) ExtractText(data []byte, charLimit int) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
		// one page past the cap is enough, the caller truncates exactly
		if utf8.RuneCountInString(b.String()) > charLimit {
			break
		}
	}

	return b.String(), pages, nil
}
