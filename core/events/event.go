package events

// Event is a structured state-change notification emitted by the ledger.
// Attributes hold canonical string encodings so downstream consumers never
// need to understand internal types.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Clone returns a deep copy so subscribers can hold events without racing the
// emitter.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Attributes: attrs}
}

// Emitter broadcasts events to downstream subscribers (journal, RPC streams,
// metrics). Delivery is fire-and-forget: emitters must never fail the
// operation that produced the event.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies Emitter while discarding all events. Useful when a
// component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(*Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(e *Event) { f(e) }

// MultiEmitter fans a single event out to several emitters in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(e *Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}
