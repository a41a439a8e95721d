package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/aichat/internal/ai"
)

// fakeProvider scripts per-call behavior and records every invocation.
type fakeProvider struct {
	calls  []fakeCall
	reply  func(call int, msgs []ai.Message) (string, error)
}

type fakeCall struct {
	model string
	msgs  []ai.Message
	opts  ai.Options
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Stream(ctx context.Context, model string, msgs []ai.Message, opts ai.Options, onDelta func(string)) error {
	f.calls = append(f.calls, fakeCall{model: model, msgs: msgs, opts: opts})
	if f.reply == nil {
		onDelta("ok")
		return nil
	}
	out, err := f.reply(len(f.calls)-1, msgs)
	if err != nil {
		return err
	}
	onDelta(out)
	return nil
}

func promptText(msgs []ai.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		for _, p := range m.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func TestSummarize_MapThenReduce(t *testing.T) {
	p := &fakeProvider{}
	s := NewSummarizer(p, "text-model", 10)

	out, err := s.Summarize(context.Background(), strings.Repeat("x", 35))
	require.NoError(t, err)
	require.Equal(t, "ok", out)

	// 4 chunks of <=10 bytes plus exactly one reduce call, reduce last.
	require.Len(t, p.calls, 5)
	for i := 0; i < 4; i++ {
		require.Equal(t, ai.EffortMedium, p.calls[i].opts.ReasoningEffort)
		require.Contains(t, promptText(p.calls[i].msgs), "Summarize the following passage")
	}
	reduce := p.calls[4]
	require.Equal(t, ai.EffortHigh, reduce.opts.ReasoningEffort)
	require.Contains(t, promptText(reduce.msgs), "4 chunk summaries")
}

func TestSummarize_ReduceSeesChunkSummariesInOrder(t *testing.T) {
	p := &fakeProvider{}
	p.reply = func(call int, msgs []ai.Message) (string, error) {
		if strings.Contains(promptText(msgs), "chunk summaries") {
			return "final", nil
		}
		return strings.Repeat("s", call+1), nil
	}
	s := NewSummarizer(p, "m", 5)
	out, err := s.Summarize(context.Background(), "aaaaabbbbbccccc")
	require.NoError(t, err)
	require.Equal(t, "final", out)

	reducePrompt := promptText(p.calls[len(p.calls)-1].msgs)
	require.Contains(t, reducePrompt, "s\n\nss\n\nsss")
}

func TestSummarize_ChunkFailurePropagates(t *testing.T) {
	wantErr := errors.New("boom")
	p := &fakeProvider{}
	p.reply = func(call int, msgs []ai.Message) (string, error) {
		if call == 1 {
			return "", wantErr
		}
		return "ok", nil
	}
	s := NewSummarizer(p, "m", 5)
	_, err := s.Summarize(context.Background(), "aaaaabbbbbccccc")
	require.ErrorIs(t, err, wantErr)
	// No reduce call after a failed chunk.
	require.Len(t, p.calls, 2)
}

func TestSummarize_EmptyInput(t *testing.T) {
	s := NewSummarizer(&fakeProvider{}, "m", 5)
	_, err := s.Summarize(context.Background(), "")
	require.Error(t, err)
}
