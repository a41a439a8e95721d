package analysis

import (
	"context"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/model"
)

const visionPrompt = `You will be given an image. ` +
	`1) Extract all visible text (OCR) under key "ocr_text". ` +
	`2) Detect and extract any tables (under "tables" as array of objects). ` +
	`3) Provide a concise two-line summary under "summary". ` +
	`4) Provide a "confidence" field (low/medium/high) if possible. ` +
	`Return valid JSON only.`

// VisionAnalyzer runs OCR-style analysis of a single image through a
// vision-capable model.
type VisionAnalyzer struct {
	provider ai.Provider
	model    string
}

func NewVisionAnalyzer(provider ai.Provider, model string) *VisionAnalyzer {
	return &VisionAnalyzer{provider: provider, model: model}
}

// AnalyzeImage issues one model call and returns the drained output.
// A missing credential surfaces as ai.ErrUnavailable before any network IO.
func (v *VisionAnalyzer) AnalyzeImage(ctx context.Context, img []byte, mime string) (string, error) {
	msgs := []ai.Message{{
		Role: model.RoleUser,
		Parts: []ai.Part{
			{Text: visionPrompt},
			{Image: img, ImageMIME: mime},
		},
	}}
	return ai.Collect(ctx, v.provider, v.model, msgs, ai.Options{ReasoningEffort: ai.EffortMedium})
}
