package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/aichat/internal/ai"
	"github.com/xxxsen/aichat/internal/knowledge"
	"github.com/xxxsen/aichat/internal/model"
	"github.com/xxxsen/aichat/internal/moderation"
	"github.com/xxxsen/aichat/internal/uistream"
)

type scriptedProvider struct {
	calls []streamCall
	reply []string
	err   error
}

type streamCall struct {
	model string
	msgs  []ai.Message
	opts  ai.Options
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, model string, msgs []ai.Message, opts ai.Options, onDelta func(delta string)) error {
	p.calls = append(p.calls, streamCall{model: model, msgs: msgs, opts: opts})
	if p.err != nil {
		return p.err
	}
	for _, delta := range p.reply {
		onDelta(delta)
	}
	return nil
}

type stubModerator struct {
	res moderation.Result
}

func (m *stubModerator) Check(ctx context.Context, text string) moderation.Result { return m.res }

type stubAnalyzer struct {
	handled bool
	calls   int
}

func (a *stubAnalyzer) Run(ctx context.Context, msgs []model.Message, em uistream.Emitter) (bool, error) {
	a.calls++
	if a.handled {
		w := uistream.NewWriter(em)
		w.Start()
		w.WriteBlock("file-analysis-text", "analysis output")
		w.Finish()
	}
	return a.handled, nil
}

type stubKB struct {
	results []knowledge.SearchResult
	err     error
	queries []string
}

func (k *stubKB) Search(ctx context.Context, query string, topK int) ([]knowledge.SearchResult, error) {
	k.queries = append(k.queries, query)
	return k.results, k.err
}

func userTurn(text string) []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{{Type: model.PartTypeText, Text: text}}},
	}
}

func TestHandleChatStreamsReply(t *testing.T) {
	provider := &scriptedProvider{reply: []string{"Hel", "lo"}}
	svc := NewService(Config{TextModel: "gpt-test", SystemPrompt: "Be brief."}, provider, nil, nil, nil)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("hi"), rec))
	require.Equal(t, "Hello", rec.Text(chatBlockID))
	require.Equal(t, uistream.EventStart, rec.Events[0].Type)
	require.Equal(t, uistream.EventFinish, rec.Events[len(rec.Events)-1].Type)

	require.Len(t, provider.calls, 1)
	call := provider.calls[0]
	require.Equal(t, "gpt-test", call.model)
	require.Equal(t, ai.EffortMedium, call.opts.ReasoningEffort)
	require.Equal(t, model.RoleSystem, call.msgs[0].Role)
	require.Equal(t, "Be brief.", call.msgs[0].Parts[0].Text)
}

func TestHandleChatModerationDenial(t *testing.T) {
	provider := &scriptedProvider{reply: []string{"should not run"}}
	moderator := &stubModerator{res: moderation.Result{Flagged: true, DenialMessage: "I can't help with that request."}}
	svc := NewService(Config{TextModel: "gpt-test"}, provider, nil, moderator, nil)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("bad"), rec))
	require.Empty(t, provider.calls)
	require.Equal(t, "I can't help with that request.", rec.Text(DenialBlockID))
	require.Equal(t, uistream.EventFinish, rec.Events[len(rec.Events)-1].Type)
}

func TestHandleChatDispatchesToAnalyzer(t *testing.T) {
	provider := &scriptedProvider{reply: []string{"plain reply"}}
	analyzer := &stubAnalyzer{handled: true}
	svc := NewService(Config{TextModel: "gpt-test"}, provider, analyzer, nil, nil)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("analyze"), rec))
	require.Equal(t, 1, analyzer.calls)
	require.Empty(t, provider.calls)
	require.Equal(t, "analysis output", rec.Text("file-analysis-text"))
}

func TestHandleChatFallsBackWhenAnalyzerDeclines(t *testing.T) {
	provider := &scriptedProvider{reply: []string{"plain reply"}}
	analyzer := &stubAnalyzer{handled: false}
	svc := NewService(Config{TextModel: "gpt-test"}, provider, analyzer, nil, nil)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("hi"), rec))
	require.Equal(t, 1, analyzer.calls)
	require.Equal(t, "plain reply", rec.Text(chatBlockID))
}

func TestHandleChatInjectsKnowledgeContext(t *testing.T) {
	provider := &scriptedProvider{reply: []string{"ok"}}
	kb := &stubKB{results: []knowledge.SearchResult{
		{Source: "cats.md", Content: "Cats sleep a lot."},
	}}
	svc := NewService(Config{TextModel: "gpt-test", SystemPrompt: "Be helpful."}, provider, nil, nil, kb)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("tell me about cats"), rec))
	require.Equal(t, []string{"tell me about cats"}, kb.queries)

	system := provider.calls[0].msgs[0].Parts[0].Text
	require.Contains(t, system, "Be helpful.")
	require.Contains(t, system, "[cats.md]")
	require.Contains(t, system, "Cats sleep a lot.")
}

func TestHandleChatKnowledgeFailureDegrades(t *testing.T) {
	provider := &scriptedProvider{reply: []string{"ok"}}
	kb := &stubKB{err: errors.New("db closed")}
	svc := NewService(Config{TextModel: "gpt-test", SystemPrompt: "Be helpful."}, provider, nil, nil, kb)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("hi"), rec))
	require.Equal(t, "Be helpful.", provider.calls[0].msgs[0].Parts[0].Text)
	require.Equal(t, "ok", rec.Text(chatBlockID))
}

func TestHandleChatProviderErrorReportedInBand(t *testing.T) {
	provider := &scriptedProvider{err: ai.ErrUnavailable}
	svc := NewService(Config{TextModel: "gpt-test"}, provider, nil, nil, nil)
	rec := &uistream.Recorder{}

	require.NoError(t, svc.HandleChat(context.Background(), userTurn("hi"), rec))
	require.Contains(t, rec.Text(chatBlockID), "not configured")
	require.Equal(t, uistream.EventFinish, rec.Events[len(rec.Events)-1].Type)
}

func TestToAIMessagesDecodesInlineImages(t *testing.T) {
	raw := []byte{1, 2, 3}
	msgs := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{
			{Type: model.PartTypeText, Text: "look at this"},
			{Type: model.PartTypeImage, Image: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)},
			{Type: model.PartTypeImage, Image: "%%%not-base64%%%"},
		}},
		{Role: model.RoleAssistant},
	}
	out := toAIMessages(msgs)
	require.Len(t, out, 1)
	require.Len(t, out[0].Parts, 2)
	require.Equal(t, "look at this", out[0].Parts[0].Text)
	require.Equal(t, raw, out[0].Parts[1].Image)
	require.Equal(t, "image/jpeg", out[0].Parts[1].ImageMIME)
}
