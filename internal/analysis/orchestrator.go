package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/extract"
	"github.com/xxxsen/aichat/internal/model"
	"github.com/xxxsen/aichat/internal/uistream"
)

// Block ids are fixed per logical phase so a consumer can address the whole
// analysis result, or the capability menu, as one text block.
const (
	AnalysisBlockID = "file-analysis-text"
	MenuBlockID     = "file-received-text"
)

const capabilityMenu = `Received %q (%s). I can (1) summarize text, (2) run OCR, ` +
	`(3) analyze images, or (4) extract tables. What would you like me to do with this file?`

type documentExtractor interface {
	Extract(ctx context.Context, data []byte, mediaType string, fileName string) (*extract.Result, error)
	RenderPages(ctx context.Context, data []byte) ([]extract.PageImage, error)
}

type imageAnalyzer interface {
	AnalyzeImage(ctx context.Context, img []byte, mime string) (string, error)
}

type textSummarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Orchestrator drives the file-analysis pipeline as an explicit state
// machine. Stage failures are converted to an in-band error delta; once the
// envelope is opened it is always closed.
type Orchestrator struct {
	extractor  documentExtractor
	vision     imageAnalyzer
	summarizer textSummarizer
}

func NewOrchestrator(extractor *extract.Extractor, vision *VisionAnalyzer, summarizer *Summarizer) *Orchestrator {
	return &Orchestrator{extractor: extractor, vision: vision, summarizer: summarizer}
}

type state int

const (
	stateRouting state = iota
	stateNoIntent
	stateExtracting
	stateSummarizingDirect
	stateRendering
	stateOCRing
	stateSummarizingOCR
	stateAnalyzingImage
	stateSummarizingRaw
	stateStreaming
	stateFailed
	stateDone
)

// run holds the per-request buffers. Everything here is owned by one request
// and discarded when the envelope closes.
type run struct {
	history []model.Message
	fileIdx int
	meta    *model.Metadata
	att     *model.Attachment
	res     *extract.Result
	pages   []extract.PageImage
	ocrText string
	output  string
	failure error
	w       *uistream.Writer
}

func (r *run) fail(err error) state {
	r.failure = err
	return stateFailed
}

// Run locates the active attachment and, if one exists, handles the turn end
// to end, reporting handled=false otherwise so the caller can fall back to
// the plain chat flow.
func (o *Orchestrator) Run(ctx context.Context, msgs []model.Message, em uistream.Emitter) (bool, error) {
	idx, meta, ok := LocateActiveFile(msgs)
	if !ok {
		return false, nil
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("file_name", meta.FileName),
		zap.String("file_type", meta.FileType),
	)
	logger.Info("file attachment located", zap.Int("message_index", idx))

	r := &run{history: msgs, fileIdx: idx, meta: meta, w: uistream.NewWriter(em)}
	for st := stateRouting; st != stateDone; {
		st = o.step(ctx, st, r)
	}
	if r.failure != nil {
		logger.Warn("analysis finished with stage failure", zap.Error(r.failure))
	}
	return true, r.w.Err()
}

func (o *Orchestrator) step(ctx context.Context, st state, r *run) state {
	switch st {
	case stateRouting:
		if !DetectsAnalysisRequest(r.history, r.fileIdx) {
			return stateNoIntent
		}
		return stateExtracting

	case stateNoIntent:
		name := r.meta.FileName
		if name == "" {
			name = "uploaded-file"
		}
		mediaType := r.meta.FileType
		if mediaType == "" {
			mediaType = "unknown"
		}
		r.w.Start()
		r.w.WriteBlock(MenuBlockID, fmt.Sprintf(capabilityMenu, name, mediaType))
		r.w.Finish()
		return stateDone

	case stateExtracting:
		r.w.Start()
		r.w.TextStart(AnalysisBlockID)
		att, err := r.meta.DecodeAttachment()
		if err != nil {
			return r.fail(err)
		}
		r.att = att
		res, err := o.extractor.Extract(ctx, att.Data, att.MediaType, att.FileName)
		if err != nil {
			return r.fail(err)
		}
		r.res = res
		// Progress notices go out before the blocking stage they precede.
		switch res.Kind {
		case extract.KindDirectText:
			return stateSummarizingDirect
		case extract.KindScanned:
			r.w.TextDelta(AnalysisBlockID, "PDF appears to be scanned. Running per-page OCR (this may take a while)...\n")
			return stateRendering
		case extract.KindRawImage:
			r.w.TextDelta(AnalysisBlockID, fmt.Sprintf("Analyzing image %q...\n", att.FileName))
			return stateAnalyzingImage
		case extract.KindRawText:
			r.w.TextDelta(AnalysisBlockID, fmt.Sprintf("Unknown file type (%s). Attempting to extract text...\n", att.MediaType))
			return stateSummarizingRaw
		default:
			r.w.TextDelta(AnalysisBlockID, fmt.Sprintf("Unknown file type (%s). Attempting to extract text...\n", att.MediaType))
			r.output = "Couldn't extract meaningful text from this file."
			return stateStreaming
		}

	case stateSummarizingDirect:
		summary, err := o.summarizer.Summarize(ctx, r.res.Text)
		if err != nil {
			return r.fail(err)
		}
		r.output = "Extracted text from PDF. Summary and structured output:\n\n" + summary
		return stateStreaming

	case stateRendering:
		pages, err := o.extractor.RenderPages(ctx, r.att.Data)
		if err != nil {
			return r.fail(err)
		}
		r.pages = pages
		return stateOCRing

	case stateOCRing:
		// One vision call per page, page 1 first, no fan-out.
		var sb strings.Builder
		for _, pg := range r.pages {
			out, err := o.vision.AnalyzeImage(ctx, pg.Data, pg.MIME)
			if err != nil {
				return r.fail(fmt.Errorf("ocr page %d: %w", pg.Page, err))
			}
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			fmt.Fprintf(&sb, "--- PAGE %d ---\n%s", pg.Page, out)
		}
		r.ocrText = sb.String()
		return stateSummarizingOCR

	case stateSummarizingOCR:
		summary, err := o.summarizer.Summarize(ctx, r.ocrText)
		if err != nil {
			return r.fail(err)
		}
		r.output = "OCR complete. Combined summary:\n\n" + summary
		return stateStreaming

	case stateAnalyzingImage:
		out, err := o.vision.AnalyzeImage(ctx, r.att.Data, r.att.MediaType)
		if err != nil {
			return r.fail(err)
		}
		r.output = "Analysis result:\n\n" + out
		return stateStreaming

	case stateSummarizingRaw:
		summary, err := o.summarizer.Summarize(ctx, r.res.Text)
		if err != nil {
			return r.fail(err)
		}
		r.output = "Extracted text summary:\n\n" + summary
		return stateStreaming

	case stateStreaming:
		r.w.TextDelta(AnalysisBlockID, r.output)
		r.w.TextEnd(AnalysisBlockID)
		r.w.Finish()
		return stateDone

	case stateFailed:
		r.w.TextDelta(AnalysisBlockID, failureMessage(r.failure))
		r.w.TextEnd(AnalysisBlockID)
		r.w.Finish()
		return stateDone
	}
	return stateDone
}

func failureMessage(err error) string {
	if errors.Is(err, ai.ErrUnavailable) {
		return "Analysis requires a configured model credential. Set the ai api_key and try again."
	}
	return "Error during analysis: " + err.Error()
}
