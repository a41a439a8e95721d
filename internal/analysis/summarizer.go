package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/model"
)

const chunkSummaryPrompt = `Summarize the following passage and extract key items ` +
	`(title, headings, important bullet points). Return JSON with keys: "title", ` +
	`"bullets" (array), "excerpt". Passage %d/%d:

%s`

const combineSummaryPrompt = `You are given %d chunk summaries (possibly as JSON or text). ` +
	`Combine them into a single structured JSON with keys: overall_summary (3-5 bullet points), ` +
	`important_entities (list), recommendations (if any). Ensure validity JSON only.`

// Summarizer produces a structured summary of arbitrarily long text by
// map-reduce: one bounded call per chunk, then one call merging the chunk
// summaries. Per-chunk output is treated as opaque text; only the reduce
// call is asked for the final structure.
type Summarizer struct {
	provider  ai.Provider
	model     string
	chunkSize int
}

func NewSummarizer(provider ai.Provider, model string, chunkSize int) *Summarizer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Summarizer{provider: provider, model: model, chunkSize: chunkSize}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	chunks := SplitChunks(text, s.chunkSize)
	if len(chunks) == 0 {
		return "", fmt.Errorf("nothing to summarize")
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("chunks", len(chunks)))
	logger.Debug("summarizing text", zap.Int("size", len(text)))

	// Map phase, strictly sequential. A chunk failure aborts the whole
	// summary; partial-document summaries are worse than an error.
	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		prompt := fmt.Sprintf(chunkSummaryPrompt, i+1, len(chunks), chunk)
		out, err := ai.Collect(ctx, s.provider, s.model,
			[]ai.Message{ai.Text(model.RoleUser, prompt)},
			ai.Options{ReasoningEffort: ai.EffortMedium})
		if err != nil {
			return "", fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, strings.TrimSpace(out))
	}

	// Reduce phase.
	combined, err := ai.Collect(ctx, s.provider, s.model,
		[]ai.Message{{
			Role: model.RoleUser,
			Parts: []ai.Part{
				{Text: fmt.Sprintf(combineSummaryPrompt, len(summaries))},
				{Text: strings.Join(summaries, "\n\n")},
			},
		}},
		ai.Options{ReasoningEffort: ai.EffortHigh})
	if err != nil {
		return "", fmt.Errorf("combine %d chunk summaries: %w", len(summaries), err)
	}
	logger.Debug("summary complete", zap.Int("output_size", len(combined)))
	return strings.TrimSpace(combined), nil
}
