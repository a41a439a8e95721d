package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned before any network call when the provider has
// no credential configured.
var ErrUnavailable = errors.New("ai provider not configured")

// Reasoning effort levels accepted by Options.ReasoningEffort.
const (
	EffortLow    = "low"
	EffortMedium = "medium"
	EffortHigh   = "high"
)

// Part is one content part of a model invocation: plain text, or an inline
// image with its media type.
type Part struct {
	Text      string
	Image     []byte
	ImageMIME string
}

// Message is a role-tagged list of content parts.
type Message struct {
	Role  string
	Parts []Part
}

// Text builds a single-part user message.
func Text(role string, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

type Options struct {
	ReasoningEffort string
	EnableWebSearch bool
}

// Provider issues one model invocation and delivers output text
// incrementally through onDelta, in generation order.
type Provider interface {
	Name() string
	Stream(ctx context.Context, model string, msgs []Message, opts Options, onDelta func(delta string)) error
}

// Collect drains one streamed invocation into a single string.
func Collect(ctx context.Context, p Provider, model string, msgs []Message, opts Options) (string, error) {
	var sb strings.Builder
	if err := p.Stream(ctx, model, msgs, opts, func(delta string) {
		sb.WriteString(delta)
	}); err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

type ProviderFactory func(args interface{}) (Provider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
