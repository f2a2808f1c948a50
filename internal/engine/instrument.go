package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// CallRecorder receives one record per engine call attempt.
type CallRecorder interface {
	RecordEngineCall(model string, res Result, err error, elapsed time.Duration)
}

// Instrumented wraps an Engine with a span and a CallRecorder entry per call.
type Instrumented struct {
	next     Engine
	tracer   trace.Tracer
	recorder CallRecorder
}

// Instrument wraps next. A nil tracer uses a no-op tracer; a nil recorder
// skips recording.
func Instrument(next Engine, tracer trace.Tracer, recorder CallRecorder) *Instrumented {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Instrumented{next: next, tracer: tracer, recorder: recorder}
}

// Generate implements Engine.
func (i *Instrumented) Generate(ctx context.Context, prompt string, s Sampling) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "engine.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("engine.model", i.next.ModelName()),
			attribute.Int("engine.max_tokens", s.MaxTokens),
			attribute.String("engine.stop", s.Stop),
			attribute.Int("engine.prompt_bytes", len(prompt)),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := i.next.Generate(ctx, prompt, s)
	elapsed := time.Since(start)

	if i.recorder != nil {
		i.recorder.RecordEngineCall(i.next.ModelName(), res, err, elapsed)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.String("engine.stop_reason", string(res.StopReason)),
		attribute.Int("engine.output_bytes", len(res.Text)),
		attribute.Int("engine.completion_tokens", res.Usage.CompletionTokens),
	)
	return res, nil
}

// ModelName implements Engine.
func (i *Instrumented) ModelName() string {
	return i.next.ModelName()
}

// HealthCheck forwards to the wrapped engine when it supports probing.
func (i *Instrumented) HealthCheck(ctx context.Context) error {
	if checker, ok := i.next.(HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

var (
	_ Engine        = (*Instrumented)(nil)
	_ HealthChecker = (*Instrumented)(nil)
)
