package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/extract"
	"github.com/xxxsen/aichat/internal/model"
	"github.com/xxxsen/aichat/internal/uistream"
)

type fakeExtractor struct {
	res          *extract.Result
	extractErr   error
	pages        []extract.PageImage
	renderErr    error
	extractCalls int
	renderCalls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, mediaType string, fileName string) (*extract.Result, error) {
	f.extractCalls++
	return f.res, f.extractErr
}

func (f *fakeExtractor) RenderPages(ctx context.Context, data []byte) ([]extract.PageImage, error) {
	f.renderCalls++
	return f.pages, f.renderErr
}

type fakeVision struct {
	calls []string
	out   string
	err   error
}

func (f *fakeVision) AnalyzeImage(ctx context.Context, img []byte, mime string) (string, error) {
	f.calls = append(f.calls, string(img))
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return "vision:" + string(img), nil
}

type fakeSummarizer struct {
	inputs []string
	out    string
	err    error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	f.inputs = append(f.inputs, text)
	return f.out, f.err
}

func analysisConversation(mediaType string) []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Metadata: &model.Metadata{
			FileName:    "doc.pdf",
			FileType:    mediaType,
			FileContent: "data:application/octet-stream;base64,aGVsbG8=",
		}},
		userText("analyze this"),
	}
}

// requireCleanEnvelope asserts the strict event order: one start, paired
// text-start/text-end per block, one finish at the very end.
func requireCleanEnvelope(t *testing.T, events []uistream.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	require.Equal(t, uistream.EventStart, events[0].Type)
	require.Equal(t, uistream.EventFinish, events[len(events)-1].Type)
	open := map[string]bool{}
	for _, ev := range events[1 : len(events)-1] {
		switch ev.Type {
		case uistream.EventTextStart:
			require.False(t, open[ev.ID], "double text-start for %s", ev.ID)
			open[ev.ID] = true
		case uistream.EventTextDelta:
			require.True(t, open[ev.ID], "delta outside block for %s", ev.ID)
		case uistream.EventTextEnd:
			require.True(t, open[ev.ID], "text-end without start for %s", ev.ID)
			open[ev.ID] = false
		default:
			t.Fatalf("unexpected event in body: %s", ev.Type)
		}
	}
	for id, stillOpen := range open {
		require.False(t, stillOpen, "block %s never closed", id)
	}
}

func TestOrchestrator_NoAttachment(t *testing.T) {
	o := &Orchestrator{extractor: &fakeExtractor{}, vision: &fakeVision{}, summarizer: &fakeSummarizer{}}
	rec := &uistream.Recorder{}
	handled, err := o.Run(context.Background(), []model.Message{userText("hello")}, rec)
	require.NoError(t, err)
	require.False(t, handled)
	require.Empty(t, rec.Events)
}

func TestOrchestrator_NoIntentEmitsMenu(t *testing.T) {
	ext := &fakeExtractor{}
	o := &Orchestrator{extractor: ext, vision: &fakeVision{}, summarizer: &fakeSummarizer{}}
	rec := &uistream.Recorder{}
	msgs := []model.Message{
		{Role: model.RoleUser, Metadata: &model.Metadata{FileName: "doc.pdf", FileType: "application/pdf", FileContent: "aGVsbG8="}},
	}
	handled, err := o.Run(context.Background(), msgs, rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)
	require.Contains(t, rec.Text(MenuBlockID), `Received "doc.pdf"`)
	require.Zero(t, ext.extractCalls)
}

func TestOrchestrator_DirectTextSkipsRasterization(t *testing.T) {
	ext := &fakeExtractor{res: &extract.Result{Kind: extract.KindDirectText, Text: strings.Repeat("t", 250)}}
	vis := &fakeVision{}
	sum := &fakeSummarizer{out: "the summary"}
	o := &Orchestrator{extractor: ext, vision: vis, summarizer: sum}
	rec := &uistream.Recorder{}

	handled, err := o.Run(context.Background(), analysisConversation("application/pdf"), rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)
	require.Zero(t, ext.renderCalls)
	require.Empty(t, vis.calls)
	require.Equal(t, []string{strings.Repeat("t", 250)}, sum.inputs)
	require.Equal(t, "Extracted text from PDF. Summary and structured output:\n\nthe summary", rec.Text(AnalysisBlockID))
}

func TestOrchestrator_ScannedPDFRunsPerPageOCR(t *testing.T) {
	ext := &fakeExtractor{
		res: &extract.Result{Kind: extract.KindScanned},
		pages: []extract.PageImage{
			{Page: 1, Data: []byte("p1"), MIME: "image/png"},
			{Page: 2, Data: []byte("p2"), MIME: "image/png"},
		},
	}
	vis := &fakeVision{}
	sum := &fakeSummarizer{out: "combined"}
	o := &Orchestrator{extractor: ext, vision: vis, summarizer: sum}
	rec := &uistream.Recorder{}

	handled, err := o.Run(context.Background(), analysisConversation("application/pdf"), rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)
	require.Equal(t, 1, ext.renderCalls)
	require.Equal(t, []string{"p1", "p2"}, vis.calls)

	require.Len(t, sum.inputs, 1)
	joined := sum.inputs[0]
	p1 := strings.Index(joined, "--- PAGE 1 ---\nvision:p1")
	p2 := strings.Index(joined, "--- PAGE 2 ---\nvision:p2")
	require.GreaterOrEqual(t, p1, 0)
	require.Greater(t, p2, p1)

	out := rec.Text(AnalysisBlockID)
	require.Contains(t, out, "PDF appears to be scanned.")
	require.Contains(t, out, "OCR complete. Combined summary:\n\ncombined")
}

func TestOrchestrator_ImageSingleVisionCall(t *testing.T) {
	ext := &fakeExtractor{res: &extract.Result{Kind: extract.KindRawImage}}
	vis := &fakeVision{out: "a chart"}
	sum := &fakeSummarizer{}
	o := &Orchestrator{extractor: ext, vision: vis, summarizer: sum}
	rec := &uistream.Recorder{}

	msgs := []model.Message{
		{Role: model.RoleUser, Metadata: &model.Metadata{FileName: "chart.png", FileType: "image/png", FileContent: "aGVsbG8="}},
		userText("analyze"),
	}
	handled, err := o.Run(context.Background(), msgs, rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)
	require.Len(t, vis.calls, 1)
	require.Empty(t, sum.inputs)
	require.Contains(t, rec.Text(AnalysisBlockID), "Analysis result:\n\na chart")
}

func TestOrchestrator_EmptyExtractionNotice(t *testing.T) {
	ext := &fakeExtractor{res: &extract.Result{Kind: extract.KindEmpty}}
	o := &Orchestrator{extractor: ext, vision: &fakeVision{}, summarizer: &fakeSummarizer{}}
	rec := &uistream.Recorder{}

	msgs := []model.Message{
		{Role: model.RoleUser, Metadata: &model.Metadata{FileName: "blob", FileType: "application/octet-stream", FileContent: "aGVsbG8="}},
		userText("analyze"),
	}
	handled, err := o.Run(context.Background(), msgs, rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)
	require.Contains(t, rec.Text(AnalysisBlockID), "Couldn't extract meaningful text from this file.")
}

func TestOrchestrator_RenderFailureReportedInBand(t *testing.T) {
	ext := &fakeExtractor{res: &extract.Result{Kind: extract.KindScanned}, renderErr: errors.New("malformed xref")}
	o := &Orchestrator{extractor: ext, vision: &fakeVision{}, summarizer: &fakeSummarizer{}}
	rec := &uistream.Recorder{}

	handled, err := o.Run(context.Background(), analysisConversation("application/pdf"), rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)
	require.Contains(t, rec.Text(AnalysisBlockID), "Error during analysis: malformed xref")
}

func TestOrchestrator_MissingCredentialClosesStreamCleanly(t *testing.T) {
	ext := &fakeExtractor{res: &extract.Result{Kind: extract.KindDirectText, Text: "enough text"}}
	sum := &fakeSummarizer{err: ai.ErrUnavailable}
	o := &Orchestrator{extractor: ext, vision: &fakeVision{}, summarizer: sum}
	rec := &uistream.Recorder{}

	handled, err := o.Run(context.Background(), analysisConversation("application/pdf"), rec)
	require.NoError(t, err)
	require.True(t, handled)
	requireCleanEnvelope(t, rec.Events)

	var deltas int
	for _, ev := range rec.Events {
		if ev.Type == uistream.EventTextDelta {
			deltas++
		}
	}
	require.Equal(t, 1, deltas)
	require.Contains(t, rec.Text(AnalysisBlockID), "requires a configured model credential")
}
