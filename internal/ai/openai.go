package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIProvider struct {
	name    string
	apiKey  string
	baseURL string
}

type openAIChatRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIChatMsg `json:"messages"`
	Stream          bool            `json:"stream"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIChatMsg struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Stream(ctx context.Context, model string, msgs []Message, opts Options, onDelta func(delta string)) error {
	if p.apiKey == "" {
		return ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/chat/completions"
	reqBody := openAIChatRequest{
		Model:           model,
		Messages:        toOpenAIMessages(msgs),
		Stream:          true,
		ReasoningEffort: opts.ReasoningEffort,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(body)))
	}
	return drainSSE(resp.Body, onDelta)
}

func toOpenAIMessages(msgs []Message) []openAIChatMsg {
	out := make([]openAIChatMsg, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]openAIContentPart, 0, len(m.Parts))
		for _, pt := range m.Parts {
			if pt.Text != "" {
				parts = append(parts, openAIContentPart{Type: "text", Text: pt.Text})
			}
			if len(pt.Image) > 0 {
				url := fmt.Sprintf("data:%s;base64,%s", imageMIME(pt.ImageMIME), base64.StdEncoding.EncodeToString(pt.Image))
				parts = append(parts, openAIContentPart{Type: "image_url", ImageURL: &openAIImageURL{URL: url}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, openAIChatMsg{Role: m.Role, Content: parts})
	}
	return out
}

// drainSSE reads an OpenAI style event stream and forwards content deltas.
func drainSSE(body io.Reader, onDelta func(delta string)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	return scanner.Err()
}

func createOpenAIFactory(args interface{}) (Provider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{
		name:    "openai",
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
