package uistream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEEmitter writes envelope events as server-sent events and flushes after
// every event so consumers can render before the turn completes.
type SSEEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, _ := w.(http.Flusher)
	return &SSEEmitter{w: w, flusher: flusher}
}

func (e *SSEEmitter) Emit(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Recorder collects events in memory. Used by tests to assert envelope
// ordering.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}

// Text concatenates all deltas written to the given block id.
func (r *Recorder) Text(id string) string {
	var out string
	for _, ev := range r.Events {
		if ev.Type == EventTextDelta && ev.ID == id {
			out += ev.Delta
		}
	}
	return out
}
