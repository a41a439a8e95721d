package uistream

// Event types framing one response turn. A turn is exactly one start and one
// finish, with zero or more text blocks in between; each block is one
// text-start, zero or more text-delta, one text-end, all sharing an id.
const (
	EventStart     = "start"
	EventTextStart = "text-start"
	EventTextDelta = "text-delta"
	EventTextEnd   = "text-end"
	EventFinish    = "finish"
)

type Event struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Delta     string `json:"delta,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Emitter delivers envelope events to the consumer. Implementations must
// deliver events in call order.
type Emitter interface {
	Emit(ev Event) error
}
