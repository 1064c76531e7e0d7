package events

// Event is a structured state change emitted by a protocol module.
type Event interface {
	EventType() string
}

// Emitter forwards events to subscribers such as the daemon log sink.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines fall back to it until an emitter
// is attached.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
