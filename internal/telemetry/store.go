package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/specq/specq/internal/queue"
	"github.com/specq/specq/internal/store"
)

const storeScopeName = "github.com/specq/specq/internal/store"

// InstrumentedStore wraps a store.DocumentStore with OTel tracing and
// metrics. Every read and write gets a span and is counted in the
// specq.store.* metrics, with revision conflicts broken out separately
// since they are the signal that two invocations raced.
// Use WrapStore to create one; it returns the original store unchanged
// when telemetry is disabled.
type InstrumentedStore struct {
	inner     store.DocumentStore
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	conflicts metric.Int64Counter
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s store.DocumentStore) store.DocumentStore {
	if !Enabled() {
		return s
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("specq.store.operations",
		metric.WithDescription("Total state document reads and writes"),
	)
	dur, _ := m.Float64Histogram("specq.store.operation.duration",
		metric.WithDescription("State document operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("specq.store.errors",
		metric.WithDescription("Total state document operation errors"),
	)
	conflicts, _ := m.Int64Counter("specq.store.conflicts",
		metric.WithDescription("Writes rejected because the revision moved underneath"),
	)
	return &InstrumentedStore{
		inner:     s,
		tracer:    Tracer(storeScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		conflicts: conflicts,
	}
}

// op starts a span and records a metric for the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("store.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStore) Read(ctx context.Context) (store.RevisionedDocument, error) {
	ctx, span, t := s.op(ctx, "Read")
	v, err := s.inner.Read(ctx)
	// A missing document is the normal first-run read, not an error.
	if errors.Is(err, store.ErrNotFound) {
		span.SetAttributes(attribute.Bool("store.missing", true))
		s.done(ctx, span, t, nil)
		return v, err
	}
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) Write(ctx context.Context, doc *queue.Document, revision string) (string, error) {
	attrs := []attribute.KeyValue{attribute.Bool("store.create", revision == "")}
	ctx, span, t := s.op(ctx, "Write", attrs...)
	rev, err := s.inner.Write(ctx, doc, revision)
	if errors.Is(err, store.ErrRevisionConflict) {
		s.conflicts.Add(ctx, 1)
	}
	s.done(ctx, span, t, err, attrs...)
	return rev, err
}
