package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// textLayer extracts the embedded text layer of a PDF. Any parse error, and
// the panics the pdf library raises on malformed xref tables, are treated as
// an empty text layer so the caller falls through to page rendering.
func (e *Extractor) textLayer(data []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for pageNr := 1; pageNr <= reader.NumPage(); pageNr++ {
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(pageText)
	}
	return strings.TrimSpace(sb.String())
}
