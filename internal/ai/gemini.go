package ai

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/xxxsen/aichat/internal/model"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Stream(ctx context.Context, modelName string, msgs []Message, opts Options, onDelta func(delta string)) error {
	if p.apiKey == "" {
		return ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return err
	}

	cfg := &genai.GenerateContentConfig{}
	if budget := thinkingBudget(opts.ReasoningEffort); budget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(budget),
		}
	}
	if opts.EnableWebSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]*genai.Part, 0, len(m.Parts))
		for _, pt := range m.Parts {
			if pt.Text != "" {
				parts = append(parts, &genai.Part{Text: pt.Text})
			}
			if len(pt.Image) > 0 {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{
					MIMEType: imageMIME(pt.ImageMIME),
					Data:     pt.Image,
				}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		// Gemini has no system role in contents, it goes into the config.
		if m.Role == model.RoleSystem {
			cfg.SystemInstruction = &genai.Content{Parts: parts}
			continue
		}
		contents = append(contents, &genai.Content{Role: geminiRole(m.Role), Parts: parts})
	}

	for resp, err := range client.Models.GenerateContentStream(ctx, modelName, contents, cfg) {
		if err != nil {
			return err
		}
		if text := resp.Text(); text != "" {
			onDelta(text)
		}
	}
	return nil
}

func geminiRole(role string) string {
	if role == model.RoleAssistant {
		return "model"
	}
	return "user"
}

func imageMIME(mime string) string {
	if mime == "" {
		return "image/png"
	}
	return mime
}

// thinkingBudget maps a reasoning effort level to a gemini thinking token
// budget. Zero disables the thinking config entirely.
func thinkingBudget(effort string) int32 {
	switch effort {
	case EffortLow:
		return 512
	case EffortMedium:
		return 2048
	case EffortHigh:
		return 8192
	default:
		return 0
	}
}

func createGeminiFactory(args interface{}) (Provider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return &geminiProvider{
		apiKey: strings.TrimSpace(cfg.APIKey),
	}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
