package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
)

// Span and attribute names.
const (
	SpanTransform = "transmute.transform"

	AttrType        = "transmute.type"
	AttrOutcome     = "transmute.outcome"
	AttrAuxiliaries = "transmute.auxiliaries"
)

// TracingListener records one span per load attempt outcome.
type TracingListener struct {
	Tracer trace.Tracer
}

// NewTracingListener uses tracer, or the global provider's
// "transmute/agent" tracer when tracer is nil.
func NewTracingListener(tracer trace.Tracer) *TracingListener {
	if tracer == nil {
		tracer = otel.Tracer("transmute/agent")
	}
	return &TracingListener{Tracer: tracer}
}

func (l *TracingListener) start(name, outcome string) trace.Span {
	_, span := l.Tracer.Start(context.Background(), SpanTransform,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String(AttrType, name),
		attribute.String(AttrOutcome, outcome),
	)
	return span
}

func (l *TracingListener) OnTransformation(td *classfile.TypeDescription, u *dynamic.Unloaded) {
	span := l.start(td.Name(), OutcomeTransformed)
	defer span.End()
	span.SetAttributes(attribute.Int(AttrAuxiliaries, len(u.Auxiliaries)))
	span.SetStatus(codes.Ok, "")
}

func (l *TracingListener) OnIgnored(name string) {
	span := l.start(name, OutcomeIgnored)
	span.End()
}

func (l *TracingListener) OnError(name string, err error) {
	span := l.start(name, OutcomeError)
	defer span.End()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (l *TracingListener) OnComplete(string) {}
