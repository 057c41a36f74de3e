package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwlgo/wfcore/workflow"
)

// OtelEmitter turns each event into an immediately-closed OpenTelemetry
// span, carrying run/step identity and status as attributes. Grounded
// in the teacher's graph/emit.OTelEmitter.
type OtelEmitter struct {
	tracer trace.Tracer
}

// NewOtelEmitter builds an OtelEmitter from a tracer, e.g.
// otel.Tracer("wfcore").
func NewOtelEmitter(tracer trace.Tracer) *OtelEmitter {
	return &OtelEmitter{tracer: tracer}
}

func (o *OtelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Kind)
	span.SetAttributes(
		attribute.String("run_id", event.RunID),
		attribute.String("step_id", event.StepID),
		attribute.String("status", string(event.Status)),
	)
	for k, v := range event.Meta {
		if s, ok := v.(string); ok {
			span.SetAttributes(attribute.String(k, s))
		}
	}
	if event.Status == workflow.StatusPermanentFail {
		span.SetStatus(codes.Error, event.Kind)
	}
	span.End()
}

func (o *OtelEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		o.Emit(e)
	}
	return nil
}

func (o *OtelEmitter) Flush(context.Context) error { return nil }
