package emit

import "context"

// NullEmitter discards every event. Useful for production runs where
// observability overhead is unwanted, or for tests that don't care
// about emitted events.
type NullEmitter struct{}

// NewNullEmitter builds a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (*NullEmitter) Emit(Event)                             {}
func (*NullEmitter) EmitBatch(context.Context, []Event) error { return nil }
func (*NullEmitter) Flush(context.Context) error              { return nil }
