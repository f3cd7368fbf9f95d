package agent

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/chazu/transmute/classfile"
	"github.com/chazu/transmute/dynamic"
)

func unloadedFoo(aux int) *dynamic.Unloaded {
	u := &dynamic.Unloaded{Description: classfile.ForName("Foo"), Bytes: make([]byte, 100)}
	for range aux {
		u.Auxiliaries = append(u.Auxiliaries, &dynamic.Unloaded{Description: classfile.ForName("Foo$Aux")})
	}
	return u
}

type logLine struct {
	level   string
	message string
	kv      []any
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (r *recordingLogger) log(level, message string, kv []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, logLine{level, message, kv})
}

func (r *recordingLogger) Info(message string, kv ...any)  { r.log("info", message, kv) }
func (r *recordingLogger) Debug(message string, kv ...any) { r.log("debug", message, kv) }
func (r *recordingLogger) Error(message string, kv ...any) { r.log("error", message, kv) }

func TestLoggingListener(t *testing.T) {
	log := &recordingLogger{}
	l := NewLoggingListener(log)

	l.OnTransformation(classfile.ForName("Foo"), unloadedFoo(2))
	l.OnIgnored("Bar")
	l.OnError("Baz", errors.New("boom"))
	l.OnComplete("Baz")

	require.Len(t, log.lines, 4)
	assert.Equal(t, logLine{"info", "transformed type", []any{"type", "Foo", "bytes", 100, "auxiliaries", 2}}, log.lines[0])
	assert.Equal(t, "debug", log.lines[1].level)
	assert.Equal(t, "error", log.lines[2].level)
	assert.Contains(t, log.lines[2].kv, "Baz")
	assert.Equal(t, "completed type", log.lines[3].message)
}

func TestLoggingListener_DefaultLogger(t *testing.T) {
	l := NewLoggingListener(nil)
	require.NotNil(t, l.Log)
	assert.NotPanics(t, func() {
		l.OnTransformation(classfile.ForName("Foo"), unloadedFoo(0))
		l.OnError("Foo", errors.New("boom"))
	})
}

func TestMetricsListener(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsListener(reg)

	m.OnTransformation(classfile.ForName("Foo"), unloadedFoo(3))
	m.OnTransformation(classfile.ForName("Foo"), unloadedFoo(0))
	m.OnIgnored("Bar")
	m.OnError("Baz", errors.New("boom"))
	m.OnComplete("Baz")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Attempts.WithLabelValues(OutcomeTransformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues(OutcomeIgnored)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues(OutcomeError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Auxiliaries))
	series, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, series)
}

func TestMetricsListener_NilIsSafe(t *testing.T) {
	var m *MetricsListener
	assert.NotPanics(t, func() {
		m.OnTransformation(classfile.ForName("Foo"), unloadedFoo(0))
		m.OnIgnored("Foo")
		m.OnError("Foo", errors.New("boom"))
	})
}

func setupTestTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return provider.Tracer("test-tracer"), exporter
}

func spanAttribute(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, attr := range span.Attributes {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingListener(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	l := NewTracingListener(tracer)

	l.OnTransformation(classfile.ForName("Foo"), unloadedFoo(1))
	l.OnIgnored("Bar")
	l.OnError("Baz", errors.New("boom"))
	l.OnComplete("Baz")

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	tests := []struct {
		typ     string
		outcome string
		status  codes.Code
	}{
		{"Foo", OutcomeTransformed, codes.Ok},
		{"Bar", OutcomeIgnored, codes.Unset},
		{"Baz", OutcomeError, codes.Error},
	}
	for i, tt := range tests {
		span := spans[i]
		assert.Equal(t, SpanTransform, span.Name)
		typ, ok := spanAttribute(span, AttrType)
		require.True(t, ok)
		assert.Equal(t, tt.typ, typ.AsString())
		outcome, ok := spanAttribute(span, AttrOutcome)
		require.True(t, ok)
		assert.Equal(t, tt.outcome, outcome.AsString())
		assert.Equal(t, tt.status, span.Status.Code)
	}

	aux, ok := spanAttribute(spans[0], AttrAuxiliaries)
	require.True(t, ok)
	assert.Equal(t, int64(1), aux.AsInt64())
	require.Len(t, spans[2].Events, 1, "error should be recorded as an event")
}

func TestCompoundListener(t *testing.T) {
	a, b := &recordingListener{}, &recordingListener{}
	c := CompoundListener{a, b}

	c.OnTransformation(classfile.ForName("Foo"), unloadedFoo(0))
	c.OnIgnored("Bar")
	c.OnError("Baz", errors.New("boom"))
	c.OnComplete("Baz")

	want := []string{"transformed:Foo", "ignored:Bar", "error:Baz", "complete:Baz"}
	assert.Equal(t, want, a.Events())
	assert.Equal(t, want, b.Events())
}
