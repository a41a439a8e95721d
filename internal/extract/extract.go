package extract

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Kind int

const (
	// KindEmpty means nothing usable could be extracted.
	KindEmpty Kind = iota
	// KindDirectText is the PDF fast path: a usable embedded text layer.
	KindDirectText
	// KindScanned is a PDF without a usable text layer; the caller should
	// render page images and OCR them.
	KindScanned
	// KindRawImage is a standalone image attachment.
	KindRawImage
	// KindRawText is an unrecognized media type decoded as text.
	KindRawText
)

type Result struct {
	Kind Kind
	// Text is set for KindDirectText and KindRawText.
	Text string
}

// PageImage is one rendered page of a scanned document, 1-indexed.
type PageImage struct {
	Page int
	Data []byte
	MIME string
}

type Config struct {
	// MinTextLayerChars is the minimum count of non-whitespace characters
	// for a PDF text layer to count as usable.
	MinTextLayerChars int
	// MinRawTextChars is the minimum decoded length for an unknown file
	// type to be worth summarizing.
	MinRawTextChars int
	// RenderScale multiplies the page media box width to pick the target
	// pixel width of a page image.
	RenderScale float64
	// MaxImageWidth caps page image width after scaling.
	MaxImageWidth int
}

const (
	defaultMinTextLayerChars = 200
	defaultMinRawTextChars   = 100
	defaultRenderScale       = 1.5
	defaultMaxImageWidth     = 1600
)

type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.MinTextLayerChars <= 0 {
		cfg.MinTextLayerChars = defaultMinTextLayerChars
	}
	if cfg.MinRawTextChars <= 0 {
		cfg.MinRawTextChars = defaultMinRawTextChars
	}
	if cfg.RenderScale <= 0 {
		cfg.RenderScale = defaultRenderScale
	}
	if cfg.MaxImageWidth <= 0 {
		cfg.MaxImageWidth = defaultMaxImageWidth
	}
	return &Extractor{cfg: cfg}
}

// Extract classifies the attachment and runs the cheap extraction paths.
// It never renders page images; a KindScanned result tells the caller to
// follow up with RenderPages.
func (e *Extractor) Extract(ctx context.Context, data []byte, mediaType string, fileName string) (*Result, error) {
	switch {
	case IsPDF(mediaType, fileName):
		text := e.textLayer(data)
		if countNonSpace(text) >= e.cfg.MinTextLayerChars {
			return &Result{Kind: KindDirectText, Text: text}, nil
		}
		return &Result{Kind: KindScanned}, nil
	case strings.HasPrefix(mediaType, "image/"):
		return &Result{Kind: KindRawImage}, nil
	default:
		text := decodeAsText(data)
		if len(text) < e.cfg.MinRawTextChars {
			return &Result{Kind: KindEmpty}, nil
		}
		return &Result{Kind: KindRawText, Text: text}, nil
	}
}

func IsPDF(mediaType string, fileName string) bool {
	if mediaType == "application/pdf" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(fileName), ".pdf")
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// decodeAsText interprets raw bytes as UTF-8 text, dropping invalid or
// control garbage so binary payloads collapse below the usability threshold.
func decodeAsText(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(data))
	for _, r := range string(data) {
		if r == '\n' || r == '\t' || r == '\r' || unicode.IsPrint(r) {
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(sb.String())
}
