package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Business metric types accepted by RecordBusinessMetric
const (
	MetricResumeAnalyzed = "resume_analyzed"
	MetricUploadReceived = "upload_received"
)

// Metrics holds the custom instruments. The zero value records nothing.
type Metrics struct {
	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	ResumesAnalyzed metric.Int64Counter
	UploadsReceived metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.AIProcessingTime, err = meter.Float64Histogram("resumecritic_ai_processing_seconds",
		metric.WithDescription("Time spent waiting on the model for a review"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("ai processing histogram: %w", err)
	}
	if m.AIRequestCount, err = meter.Int64Counter("resumecritic_ai_requests_total",
		metric.WithDescription("Model calls made, by operation and success")); err != nil {
		return nil, fmt.Errorf("ai request counter: %w", err)
	}
	if m.AIErrorCount, err = meter.Int64Counter("resumecritic_ai_errors_total",
		metric.WithDescription("Model calls that failed")); err != nil {
		return nil, fmt.Errorf("ai error counter: %w", err)
	}
	if m.AITokenUsage, err = meter.Int64Histogram("resumecritic_ai_tokens_total",
		metric.WithDescription("Tokens per model call, split by token_type"),
		metric.WithUnit("tokens")); err != nil {
		return nil, fmt.Errorf("ai token histogram: %w", err)
	}
	if m.ResumesAnalyzed, err = meter.Int64Counter("resumecritic_analyses_total",
		metric.WithDescription("Analysis requests by outcome")); err != nil {
		return nil, fmt.Errorf("analyses counter: %w", err)
	}
	if m.UploadsReceived, err = meter.Int64Counter("resumecritic_uploads_total",
		metric.WithDescription("Uploaded resumes by detected format")); err != nil {
		return nil, fmt.Errorf("uploads counter: %w", err)
	}

	return m, nil
}

// AIOperationResult holds the result of an AI operation including token usage
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

func (r *AIOperationResult) err() error {
	if r == nil {
		return nil
	}
	return r.Error
}

// TokenUsage mirrors ai.TokenUsage so the two convert directly
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// TrackAIOperationWithTokens runs fn inside an ai.<operation> span and records
// its latency, outcome and token usage. It returns fn's error.
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult, om *ObservabilityManager) error {
	if m.AIRequestCount == nil {
		return fn(ctx).err()
	}

	ctx, span := om.Tracer("resumecritic.ai").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	elapsed := time.Since(start)
	err := result.err()

	switches := om.customMetrics().AIOperations
	if switches.Enabled {
		attrs := metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.Bool("success", err == nil),
		)
		if switches.TrackDuration {
			m.AIProcessingTime.Record(ctx, elapsed.Seconds(), attrs)
		}
		m.AIRequestCount.Add(ctx, 1, attrs)
		if err != nil {
			m.AIErrorCount.Add(ctx, 1, attrs)
		}
		if switches.TrackTokenUsage && result != nil && result.TokenUsage != nil {
			m.recordTokens(ctx, operation, err == nil, result.TokenUsage)
		}
	}

	annotateSpan(span, operation, err, result)
	return err
}

func (m *Metrics) recordTokens(ctx context.Context, operation string, success bool, usage *TokenUsage) {
	for tokenType, n := range map[string]int64{
		"input":  usage.InputTokens,
		"output": usage.OutputTokens,
		"total":  usage.TotalTokens,
	} {
		m.AITokenUsage.Record(ctx, n, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.Bool("success", success),
			attribute.String("token_type", tokenType),
		))
	}
}

func annotateSpan(span oteltrace.Span, operation string, err error, result *AIOperationResult) {
	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)
	if result != nil && result.TokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", result.TokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", result.TokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", result.TokenUsage.TotalTokens),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// RecordBusinessMetric bumps one of the Metric* counters. Unknown types are ignored.
func (m *Metrics) RecordBusinessMetric(ctx context.Context, metricType string, success bool, om *ObservabilityManager, attributes ...attribute.KeyValue) {
	if !om.customMetrics().BusinessMetrics.Enabled {
		return
	}

	var counter metric.Int64Counter
	switch metricType {
	case MetricResumeAnalyzed:
		counter = m.ResumesAnalyzed
	case MetricUploadReceived:
		counter = m.UploadsReceived
	}
	if counter == nil {
		return
	}

	attrs := append([]attribute.KeyValue{attribute.Bool("success", success)}, attributes...)
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
