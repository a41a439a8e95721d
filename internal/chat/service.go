package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/knowledge"
	"github.com/xxxsen/aichat/internal/model"
	"github.com/xxxsen/aichat/internal/moderation"
	"github.com/xxxsen/aichat/internal/uistream"
)

const (
	// DenialBlockID carries the moderation denial text when a turn is blocked.
	DenialBlockID = "moderation-denial-text"
	chatBlockID   = "chat-text"
)

const defaultRequestBudget = 120 * time.Second

type ModerationChecker interface {
	Check(ctx context.Context, text string) moderation.Result
}

type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.SearchResult, error)
}

type FileAnalyzer interface {
	Run(ctx context.Context, msgs []model.Message, em uistream.Emitter) (bool, error)
}

type Config struct {
	TextModel       string
	SystemPrompt    string
	EnableWebSearch bool
	KnowledgeTopK   int
	RequestBudget   time.Duration
}

// Service handles one chat turn end to end: moderation, file-analysis
// dispatch, and the plain streaming flow with optional knowledge grounding.
type Service struct {
	cfg       Config
	provider  ai.Provider
	analyzer  FileAnalyzer
	moderator ModerationChecker
	kb        KnowledgeSearcher
}

// NewService wires the turn pipeline. moderator and kb may be nil to disable
// the corresponding stage; analyzer may be nil to disable file analysis.
func NewService(cfg Config, provider ai.Provider, analyzer FileAnalyzer, moderator ModerationChecker, kb KnowledgeSearcher) *Service {
	if cfg.RequestBudget <= 0 {
		cfg.RequestBudget = defaultRequestBudget
	}
	return &Service{cfg: cfg, provider: provider, analyzer: analyzer, moderator: moderator, kb: kb}
}

// HandleChat runs one turn against the emitter. Stage errors after the
// envelope opens are reported in-band; the returned error covers emit
// failures only.
func (s *Service) HandleChat(ctx context.Context, msgs []model.Message, em uistream.Emitter) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestBudget)
	defer cancel()

	latest := latestUserText(msgs)
	if s.moderator != nil {
		if res := s.moderator.Check(ctx, latest); res.Flagged {
			logutil.GetLogger(ctx).Info("message blocked by moderation", zap.String("category", res.Category))
			w := uistream.NewWriter(em)
			w.Start()
			w.WriteBlock(DenialBlockID, res.DenialMessage)
			w.Finish()
			return w.Err()
		}
	}

	if s.analyzer != nil {
		handled, err := s.analyzer.Run(ctx, msgs, em)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return s.streamChat(ctx, msgs, latest, em)
}

func (s *Service) streamChat(ctx context.Context, msgs []model.Message, latest string, em uistream.Emitter) error {
	w := uistream.NewWriter(em)
	w.Start()
	w.TextStart(chatBlockID)

	req := make([]ai.Message, 0, len(msgs)+1)
	if system := s.systemMessage(ctx, latest); system != "" {
		req = append(req, ai.Text(model.RoleSystem, system))
	}
	req = append(req, toAIMessages(msgs)...)

	opts := ai.Options{
		ReasoningEffort: ai.EffortMedium,
		EnableWebSearch: s.cfg.EnableWebSearch,
	}
	err := s.provider.Stream(ctx, s.cfg.TextModel, req, opts, func(delta string) {
		w.TextDelta(chatBlockID, delta)
	})
	if err != nil {
		logutil.GetLogger(ctx).Error("chat stream failed", zap.Error(err))
		w.TextDelta(chatBlockID, chatFailureMessage(err))
	}
	w.TextEnd(chatBlockID)
	w.Finish()
	return w.Err()
}

// systemMessage combines the configured prompt with knowledge-base context
// retrieved for the latest user text. Retrieval failure degrades to the bare
// prompt.
func (s *Service) systemMessage(ctx context.Context, latest string) string {
	prompt := s.cfg.SystemPrompt
	if s.kb == nil || strings.TrimSpace(latest) == "" {
		return prompt
	}
	results, err := s.kb.Search(ctx, latest, s.cfg.KnowledgeTopK)
	if err != nil {
		logutil.GetLogger(ctx).Warn("knowledge search failed", zap.Error(err))
		return prompt
	}
	if len(results) == 0 {
		return prompt
	}
	var sb strings.Builder
	if prompt != "" {
		sb.WriteString(prompt)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Relevant knowledge base entries:\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("\n[%s]\n%s\n", r.Source, r.Content))
	}
	return sb.String()
}

func chatFailureMessage(err error) string {
	if errors.Is(err, ai.ErrUnavailable) {
		return "The chat model is not configured. Set the ai api_key and try again."
	}
	return "Error: " + err.Error()
}

func latestUserText(msgs []model.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return msgs[i].PlainText()
		}
	}
	return ""
}

// toAIMessages converts conversation messages to provider messages. Inline
// data-URL images are decoded; parts that fail to decode are dropped.
func toAIMessages(msgs []model.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		var parts []ai.Part
		for _, p := range m.Parts {
			switch p.Type {
			case model.PartTypeText:
				if p.Text != "" {
					parts = append(parts, ai.Part{Text: p.Text})
				}
			case model.PartTypeImage:
				data, mime, err := decodeInlineImage(p)
				if err != nil {
					continue
				}
				parts = append(parts, ai.Part{Image: data, ImageMIME: mime})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, ai.Message{Role: m.Role, Parts: parts})
	}
	return out
}

func decodeInlineImage(p model.Part) ([]byte, string, error) {
	encoded := p.Image
	mime := p.MediaType
	if strings.HasPrefix(encoded, "data:") {
		idx := strings.IndexByte(encoded, ',')
		if idx < 0 {
			return nil, "", fmt.Errorf("malformed data url")
		}
		header := encoded[len("data:"):idx]
		if semi := strings.IndexByte(header, ';'); semi >= 0 {
			header = header[:semi]
		}
		if mime == "" {
			mime = header
		}
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("decode image part: %w", err)
	}
	if mime == "" {
		mime = "image/png"
	}
	return data, mime, nil
}
