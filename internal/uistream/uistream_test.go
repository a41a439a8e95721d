package uistream

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterEnvelopeOrder(t *testing.T) {
	rec := &Recorder{}
	w := NewWriter(rec)
	w.Start()
	w.TextStart("b1")
	w.TextDelta("b1", "hel")
	w.TextDelta("b1", "lo")
	w.TextEnd("b1")
	w.Finish()
	require.NoError(t, w.Err())

	types := make([]string, 0, len(rec.Events))
	for _, ev := range rec.Events {
		types = append(types, ev.Type)
	}
	require.Equal(t, []string{EventStart, EventTextStart, EventTextDelta, EventTextDelta, EventTextEnd, EventFinish}, types)
	require.NotEmpty(t, rec.Events[0].MessageID)
	require.Equal(t, "hello", rec.Text("b1"))
}

func TestWriterSkipsEmptyDelta(t *testing.T) {
	rec := &Recorder{}
	w := NewWriter(rec)
	w.TextStart("b1")
	w.TextDelta("b1", "")
	w.TextEnd("b1")
	require.Len(t, rec.Events, 2)
}

func TestWriteBlock(t *testing.T) {
	rec := &Recorder{}
	w := NewWriter(rec)
	w.WriteBlock("menu", "pick one")

	require.Len(t, rec.Events, 3)
	require.Equal(t, EventTextStart, rec.Events[0].Type)
	require.Equal(t, EventTextEnd, rec.Events[2].Type)
	require.Equal(t, "pick one", rec.Text("menu"))
}

type failingEmitter struct {
	calls int
	err   error
}

func (f *failingEmitter) Emit(ev Event) error {
	f.calls++
	return f.err
}

func TestWriterStickyError(t *testing.T) {
	em := &failingEmitter{err: errors.New("client gone")}
	w := NewWriter(em)
	w.Start()
	w.TextStart("b1")
	w.TextDelta("b1", "x")
	w.Finish()

	require.Equal(t, 1, em.calls)
	require.EqualError(t, w.Err(), "client gone")
}

func TestSSEEmitterWireFormat(t *testing.T) {
	rr := httptest.NewRecorder()
	em := NewSSEEmitter(rr)
	require.NoError(t, em.Emit(Event{Type: EventStart, MessageID: "m1"}))
	require.NoError(t, em.Emit(Event{Type: EventTextDelta, ID: "b1", Delta: "hi"}))

	require.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	require.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))

	body := rr.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	require.Equal(t, `data: {"type":"start","messageId":"m1"}`, frames[0])
	require.Equal(t, `data: {"type":"text-delta","id":"b1","delta":"hi"}`, frames[1])
	require.True(t, rr.Flushed)
}
