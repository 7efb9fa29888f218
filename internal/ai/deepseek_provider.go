package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/observability"
)

// DeepSeekProvider implements Provider for the DeepSeek chat API, which is
// OpenAI compatible apart from the reasoning_content delta field
type DeepSeekProvider struct {
	client    openai.Client
	config    config.OperationAIConfig
	operation string
	breaker   *Breaker
	metrics   *observability.Metrics
	logger    *errors.Logger
}

// Ensure DeepSeekProvider implements Provider
var _ Provider = (*DeepSeekProvider)(nil)

// NewDeepSeekProvider creates a provider bound to one operation. Retries are
// handled here rather than by the client so streams are never replayed.
func NewDeepSeekProvider(cfg config.OperationAIConfig, operation string, breaker *Breaker, httpClient *http.Client, metrics *observability.Metrics, logger *errors.Logger) *DeepSeekProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &DeepSeekProvider{
		client:    openai.NewClient(opts...),
		config:    cfg,
		operation: operation,
		breaker:   breaker,
		metrics:   metrics,
		logger:    logger,
	}
}

func (d *DeepSeekProvider) params(req Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    d.config.Model,
		Messages: messages,
	}
	if d.config.Temperature != nil && *d.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(*d.config.Temperature))
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

func (d *DeepSeekProvider) startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	tracer := otel.Tracer("resumelens.ai.deepseek")
	ctx, span := tracer.Start(ctx, "deepseek."+name)
	span.SetAttributes(
		attribute.String("ai.provider", config.ProviderDeepSeek),
		attribute.String("ai.model", d.config.Model),
		attribute.String("ai.operation", d.operation),
		attribute.Int("input.prompt_length", len(req.User)),
	)
	return ctx, span
}

func (d *DeepSeekProvider) timeout() time.Duration {
	if d.config.Timeout != nil && *d.config.Timeout > 0 {
		return *d.config.Timeout
	}
	return 2 * time.Minute
}

func (d *DeepSeekProvider) maxRetries() int {
	if d.config.MaxRetries != nil {
		return *d.config.MaxRetries
	}
	return 0
}

// openStream performs the request and waits for the response headers, so a
// rejected request surfaces here and can be retried
func (d *DeepSeekProvider) openStream(ctx context.Context, req Request) (*ssestream.Stream[openai.ChatCompletionChunk], error) {
	params := d.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	return execute(d.breaker, func() (*ssestream.Stream[openai.ChatCompletionChunk], error) {
		return withRetry(ctx, d.logger, d.operation, d.maxRetries(), func() (*ssestream.Stream[openai.ChatCompletionChunk], error) {
			stream := d.client.Chat.Completions.NewStreaming(ctx, params)
			if err := stream.Err(); err != nil {
				_ = stream.Close()
				return nil, err
			}
			return stream, nil
		})
	})
}

// Stream implements Provider
func (d *DeepSeekProvider) Stream(ctx context.Context, req Request) (TokenStream, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	ctx, span := d.startSpan(ctx, "stream", req)

	start := time.Now()
	stream, err := d.openStream(ctx, req)
	if err != nil {
		err = classifyError(err, "failed to open DeepSeek stream")
		d.metrics.RecordAICall(ctx, config.ProviderDeepSeek, d.operation, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		span.End()
		cancel()
		return nil, err
	}

	return &deepSeekStream{
		provider: d,
		stream:   stream,
		ctx:      ctx,
		cancel:   cancel,
		span:     span,
		start:    start,
	}, nil
}

// deepSeekStream adapts the SSE chunk stream to TokenStream
type deepSeekStream struct {
	provider *DeepSeekProvider
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
	ctx      context.Context
	cancel   context.CancelFunc
	span     trace.Span
	start    time.Time

	current   Delta
	usage     *TokenUsage
	closeOnce sync.Once
}

// reasoningDelta holds the DeepSeek field the OpenAI types do not declare
type reasoningDelta struct {
	ReasoningContent string `json:"reasoning_content"`
}

func (s *deepSeekStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			s.usage = &TokenUsage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		s.current = Delta{Content: delta.Content}
		if raw := delta.RawJSON(); strings.Contains(raw, "reasoning_content") {
			var rd reasoningDelta
			if err := json.Unmarshal([]byte(raw), &rd); err == nil {
				s.current.Reasoning = rd.ReasoningContent
			}
		}
		if s.current.Content == "" && s.current.Reasoning == "" {
			continue
		}
		return true
	}
	return false
}

func (s *deepSeekStream) Current() Delta {
	return s.current
}

func (s *deepSeekStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return classifyError(err, "DeepSeek stream failed")
	}
	return nil
}

func (s *deepSeekStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stream.Close()
		s.cancel()

		streamErr := s.Err()
		metrics := s.provider.metrics
		metrics.RecordAICall(s.ctx, config.ProviderDeepSeek, s.provider.operation, time.Since(s.start), streamErr)
		if s.usage != nil {
			metrics.RecordTokens(s.ctx, s.provider.operation, s.usage.InputTokens, s.usage.OutputTokens)
			s.span.SetAttributes(
				attribute.Int64("ai.tokens.input", s.usage.InputTokens),
				attribute.Int64("ai.tokens.output", s.usage.OutputTokens),
				attribute.Int64("ai.tokens.total", s.usage.TotalTokens),
			)
		}
		if streamErr != nil {
			s.span.RecordError(streamErr)
			s.span.SetStatus(codes.Error, "stream failed")
		}
		s.span.End()
	})
	return err
}

// Complete implements Provider
func (d *DeepSeekProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	ctx, span := d.startSpan(ctx, "complete", req)
	defer span.End()

	start := time.Now()
	params := d.params(req)
	resp, err := execute(d.breaker, func() (*openai.ChatCompletion, error) {
		return withRetry(ctx, d.logger, d.operation, d.maxRetries(), func() (*openai.ChatCompletion, error) {
			return d.client.Chat.Completions.New(ctx, params)
		})
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.NewAIError(errors.ErrCodeMalformedResponse, "DeepSeek returned no choices", nil)
	}
	err = classifyError(err, "DeepSeek completion failed")
	d.metrics.RecordAICall(ctx, config.ProviderDeepSeek, d.operation, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}

	usage := &TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	d.metrics.RecordTokens(ctx, d.operation, usage.InputTokens, usage.OutputTokens)
	span.SetAttributes(
		attribute.Int64("ai.tokens.total", usage.TotalTokens),
		attribute.String("ai.finish_reason", string(resp.Choices[0].FinishReason)),
	)

	return &Completion{Text: resp.Choices[0].Message.Content, Usage: usage}, nil
}

// RawStream implements Provider
func (d *DeepSeekProvider) RawStream(ctx context.Context, req Request, fn func(raw []byte) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()
	ctx, span := d.startSpan(ctx, "raw_stream", req)
	defer span.End()

	start := time.Now()
	stream, err := d.openStream(ctx, req)
	if err != nil {
		err = classifyError(err, "failed to open DeepSeek stream")
		d.metrics.RecordAICall(ctx, config.ProviderDeepSeek, d.operation, time.Since(start), err)
		span.RecordError(err)
		return err
	}
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		if err := fn([]byte(stream.Current().RawJSON())); err != nil {
			return err
		}
	}
	err = classifyError(stream.Err(), "DeepSeek stream failed")
	d.metrics.RecordAICall(ctx, config.ProviderDeepSeek, d.operation, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ValidateKey lists models, the cheapest authenticated call
func (d *DeepSeekProvider) ValidateKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := d.client.Models.List(ctx)
	if err != nil {
		d.logger.Debug("Key validation failed", "provider", config.ProviderDeepSeek, "error", err.Error())
		return classifyError(err, "DeepSeek key validation failed")
	}
	return nil
}

// ModelInfo implements Provider
func (d *DeepSeekProvider) ModelInfo() ModelInfo {
	return ModelInfo{Provider: config.ProviderDeepSeek, Name: d.config.Model, Operation: d.operation}
}

// Close implements Provider
func (d *DeepSeekProvider) Close() error {
	return nil
}
