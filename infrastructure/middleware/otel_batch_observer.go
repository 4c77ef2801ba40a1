package middleware

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-cohort/internal/domain"
	"github.com/ahrav/go-cohort/internal/ports"
)

var _ ports.BatchObserver = (*OTelBatchObserver)(nil)

const observerTracer = "github.com/ahrav/go-cohort/batch"

// OTelBatchObserver traces batch transitions with OpenTelemetry. PreBatch
// starts a span and returns a context carrying it, so the observer holds no
// per-batch state and one instance serves concurrent batches. PostBatch
// records one event per skipped item and ends the span.
type OTelBatchObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelBatchObserver creates an observer. metrics may be nil; tracer
// defaults to the global OTel tracer provider when nil.
func NewOTelBatchObserver(metrics ports.MetricsCollector, tracer trace.Tracer) *OTelBatchObserver {
	if tracer == nil {
		tracer = otel.Tracer(observerTracer)
	}
	return &OTelBatchObserver{metrics: metrics, tracer: tracer}
}

// PreBatch implements the BatchObserver interface.
func (o *OTelBatchObserver) PreBatch(
	ctx context.Context,
	transition domain.Transition,
	applicationID string,
	requested int,
) context.Context {
	ctx, _ = o.tracer.Start(ctx, "Batch."+string(transition), trace.WithAttributes(
		attribute.String("batch.transition", string(transition)),
		attribute.String("application.id", applicationID),
		attribute.Int("batch.requested", requested),
	))
	return ctx
}

// PostBatch implements the BatchObserver interface.
func (o *OTelBatchObserver) PostBatch(
	ctx context.Context,
	result domain.BatchResult,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch.transitioned", result.Count),
		attribute.Int("batch.skipped", len(result.Skipped)),
	)
	for _, s := range result.Skipped {
		span.AddEvent("batch.item_skipped", trace.WithAttributes(
			attribute.String("submission.id", s.SubmissionID),
			attribute.String("skip.reason", string(s.Reason)),
		))
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result.Count == 0 && len(result.Skipped) > 0:
		outcome = "all_skipped"
		span.SetStatus(codes.Ok, "no submission transitioned")
	default:
		span.SetStatus(codes.Ok, "batch completed")
	}

	if o.metrics == nil {
		return
	}
	labels := map[string]string{
		"transition": string(result.Transition),
		"status":     outcome,
		"partial":    strconv.FormatBool(err == nil && len(result.Skipped) > 0),
	}
	o.metrics.RecordLatency("batch_"+string(result.Transition), elapsed, labels)
	o.metrics.RecordCounter("batch_runs_total", 1, labels)
}
