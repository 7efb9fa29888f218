package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all custom metrics for the service. Record methods are
// no-ops on a nil *Metrics.
type Metrics struct {
	// AI call metrics
	AICallDuration metric.Float64Histogram
	AIRequestCount metric.Int64Counter
	AIErrorCount   metric.Int64Counter
	AITokenUsage   metric.Int64Counter

	// Stream metrics
	StreamCount       metric.Int64Counter
	StreamEvents      metric.Int64Counter
	FirstFindingDelay metric.Float64Histogram

	// Infrastructure metrics
	RateLimitHits metric.Int64Counter
	ReloadCount   metric.Int64Counter
	FormatCache   metric.Int64Counter
}

// NewMetrics creates every instrument from meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.AICallDuration, err = meter.Float64Histogram(
		"resumelens_ai_call_duration_seconds",
		metric.WithDescription("Time spent in upstream model calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI call duration metric: %w", err)
	}

	if m.AIRequestCount, err = meter.Int64Counter(
		"resumelens_ai_requests_total",
		metric.WithDescription("Total number of upstream model requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI request count metric: %w", err)
	}

	if m.AIErrorCount, err = meter.Int64Counter(
		"resumelens_ai_errors_total",
		metric.WithDescription("Total number of upstream model request errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI error count metric: %w", err)
	}

	if m.AITokenUsage, err = meter.Int64Counter(
		"resumelens_ai_tokens_total",
		metric.WithDescription("Tokens consumed by upstream model requests"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create AI token usage metric: %w", err)
	}

	if m.StreamCount, err = meter.Int64Counter(
		"resumelens_streams_total",
		metric.WithDescription("Finished analysis streams by kind and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stream count metric: %w", err)
	}

	if m.StreamEvents, err = meter.Int64Counter(
		"resumelens_stream_events_total",
		metric.WithDescription("Events written to analysis streams by type"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stream events metric: %w", err)
	}

	if m.FirstFindingDelay, err = meter.Float64Histogram(
		"resumelens_time_to_first_finding_seconds",
		metric.WithDescription("Time from stream start to the first emitted finding"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create first finding metric: %w", err)
	}

	if m.RateLimitHits, err = meter.Int64Counter(
		"resumelens_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	if m.ReloadCount, err = meter.Int64Counter(
		"resumelens_reloads_total",
		metric.WithDescription("Hot reloads of prompts, certificates and secrets"),
	); err != nil {
		return nil, fmt.Errorf("failed to create reload count metric: %w", err)
	}

	if m.FormatCache, err = meter.Int64Counter(
		"resumelens_format_cache_lookups_total",
		metric.WithDescription("Hierarchy format cache lookups by result"),
	); err != nil {
		return nil, fmt.Errorf("failed to create format cache metric: %w", err)
	}

	return m, nil
}

// RecordAICall records one upstream call
func (m *Metrics) RecordAICall(ctx context.Context, provider, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)
	m.AIRequestCount.Add(ctx, 1, attrs)
	m.AICallDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.AIErrorCount.Add(ctx, 1, attrs)
	}
}

// RecordTokens records token usage reported by the provider
func (m *Metrics) RecordTokens(ctx context.Context, operation string, input, output int64) {
	if m == nil {
		return
	}
	for _, tt := range []struct {
		tokenType string
		value     int64
	}{
		{"input", input},
		{"output", output},
	} {
		if tt.value <= 0 {
			continue
		}
		m.AITokenUsage.Add(ctx, tt.value, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("token_type", tt.tokenType),
		))
	}
}

// RecordStream records a finished stream with its per-type event counts
func (m *Metrics) RecordStream(ctx context.Context, kind, outcome string, events map[string]int, firstFinding time.Duration) {
	if m == nil {
		return
	}
	m.StreamCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
	for typ, n := range events {
		m.StreamEvents.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("type", typ),
		))
	}
	if firstFinding > 0 {
		m.FirstFindingDelay.Record(ctx, firstFinding.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordRateLimitHit records a rejected request
func (m *Metrics) RecordRateLimitHit(ctx context.Context, keyType string) {
	if m == nil {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key_type", keyType)))
}

// RecordReload records a hot reload attempt of target
func (m *Metrics) RecordReload(ctx context.Context, target string, err error) {
	if m == nil {
		return
	}
	m.ReloadCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.Bool("success", err == nil),
	))
}

// RecordFormatCache records a format cache lookup
func (m *Metrics) RecordFormatCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.FormatCache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
