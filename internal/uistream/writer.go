package uistream

import "github.com/google/uuid"

// Writer is a convenience layer over an Emitter. The first emit error sticks
// and turns every later call into a no-op, so a pipeline can finish its
// envelope unconditionally and report the error once at the end.
type Writer struct {
	emitter Emitter
	err     error
}

func NewWriter(emitter Emitter) *Writer {
	return &Writer{emitter: emitter}
}

func (w *Writer) emit(ev Event) {
	if w.err != nil {
		return
	}
	w.err = w.emitter.Emit(ev)
}

func (w *Writer) Start() {
	w.emit(Event{Type: EventStart, MessageID: uuid.NewString()})
}

func (w *Writer) TextStart(id string) {
	w.emit(Event{Type: EventTextStart, ID: id})
}

func (w *Writer) TextDelta(id string, delta string) {
	if delta == "" {
		return
	}
	w.emit(Event{Type: EventTextDelta, ID: id, Delta: delta})
}

func (w *Writer) TextEnd(id string) {
	w.emit(Event{Type: EventTextEnd, ID: id})
}

func (w *Writer) Finish() {
	w.emit(Event{Type: EventFinish})
}

// WriteBlock emits a complete single-delta text block.
func (w *Writer) WriteBlock(id string, text string) {
	w.TextStart(id)
	w.TextDelta(id, text)
	w.TextEnd(id)
}

func (w *Writer) Err() error {
	return w.err
}
