package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// RenderPages produces one raster image per PDF page, in page order. Errors
// here are fatal to the analysis of the document: a scanned PDF without
// recoverable page images cannot be OCRed.
func (e *Extractor) RenderPages(ctx context.Context, data []byte) ([]PageImage, error) {
	logger := logutil.GetLogger(ctx)
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	dims, err := pctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("pdf page dims: %w", err)
	}

	pages := make([]PageImage, 0, pctx.PageCount)
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		images, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
		if err != nil {
			return nil, fmt.Errorf("extract images for page %d: %w", pageNr, err)
		}
		raw, fileType := largestImage(images)
		if raw == nil {
			logger.Debug("page has no image stream", zap.Int("page", pageNr))
			continue
		}

		targetWidth := e.cfg.MaxImageWidth
		if pageNr-1 < len(dims) {
			if scaled := int(dims[pageNr-1].Width * e.cfg.RenderScale); scaled > 0 && scaled < targetWidth {
				targetWidth = scaled
			}
		}
		scaled, mime, err := e.Downscale(raw, targetWidth)
		if err != nil {
			// Undecodable image stream (exotic filter): pass through as-is.
			logger.Warn("downscale page image failed", zap.Int("page", pageNr), zap.Error(err))
			scaled, mime = raw, "image/"+fileType
		}
		pages = append(pages, PageImage{Page: pageNr, Data: scaled, MIME: mime})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no renderable page images in pdf")
	}
	return pages, nil
}

// largestImage picks the biggest image stream on a page. Scanned documents
// carry one full-page scan per page; picking the largest skips decorations.
func largestImage(images map[int]model.Image) ([]byte, string) {
	var best []byte
	var fileType string
	for _, img := range images {
		data, err := io.ReadAll(img)
		if err != nil {
			continue
		}
		if len(data) > len(best) {
			best = data
			fileType = img.FileType
		}
	}
	return best, fileType
}
