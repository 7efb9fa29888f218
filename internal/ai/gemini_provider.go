package ai

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/observability"
)

// GeminiProvider implements Provider for Google Gemini
type GeminiProvider struct {
	client    *genai.Client
	config    config.OperationAIConfig
	operation string
	breaker   *Breaker
	metrics   *observability.Metrics
	logger    *errors.Logger
}

// Ensure GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider instance for a specific operation
func NewGeminiProvider(ctx context.Context, cfg config.OperationAIConfig, operation string, breaker *Breaker, httpClient *http.Client, metrics *observability.Metrics, logger *errors.Logger) (*GeminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed, "Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:    client,
		config:    cfg,
		operation: operation,
		breaker:   breaker,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

func (g *GeminiProvider) contentConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if g.config.Temperature != nil && *g.config.Temperature > 0 {
		cfg.Temperature = g.config.Temperature
	}
	return cfg
}

func (g *GeminiProvider) startSpan(ctx context.Context, name string, req Request) (context.Context, trace.Span) {
	tracer := otel.Tracer("resumelens.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini."+name)
	span.SetAttributes(
		attribute.String("ai.provider", config.ProviderGemini),
		attribute.String("ai.model", g.config.Model),
		attribute.String("ai.operation", g.operation),
		attribute.Int("input.prompt_length", len(req.User)),
	)
	return ctx, span
}

func (g *GeminiProvider) timeout() time.Duration {
	if g.config.Timeout != nil && *g.config.Timeout > 0 {
		return *g.config.Timeout
	}
	return 2 * time.Minute
}

func (g *GeminiProvider) maxRetries() int {
	if g.config.MaxRetries != nil {
		return *g.config.MaxRetries
	}
	return 0
}

// pulled is an open response iterator whose first item has been read
type pulled struct {
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	first *genai.GenerateContentResponse
	done  bool
}

// openStream starts the iterator and reads the first response, so failures
// before any data can still be retried
func (g *GeminiProvider) openStream(ctx context.Context, req Request) (*pulled, error) {
	contents := genai.Text(req.User)
	cfg := g.contentConfig(req)

	return execute(g.breaker, func() (*pulled, error) {
		return withRetry(ctx, g.logger, g.operation, g.maxRetries(), func() (*pulled, error) {
			next, stop := iter.Pull2(g.client.Models.GenerateContentStream(ctx, g.config.Model, contents, cfg))
			resp, err, ok := next()
			if err != nil {
				stop()
				return nil, err
			}
			return &pulled{next: next, stop: stop, first: resp, done: !ok}, nil
		})
	})
}

// Stream implements Provider
func (g *GeminiProvider) Stream(ctx context.Context, req Request) (TokenStream, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	ctx, span := g.startSpan(ctx, "stream", req)

	start := time.Now()
	p, err := g.openStream(ctx, req)
	if err != nil {
		err = classifyError(err, "failed to open Gemini stream")
		g.metrics.RecordAICall(ctx, config.ProviderGemini, g.operation, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		span.End()
		cancel()
		return nil, err
	}

	return &geminiStream{provider: g, pulled: p, ctx: ctx, cancel: cancel, span: span, start: start}, nil
}

// geminiStream adapts the response iterator to TokenStream. Thought parts
// become reasoning.
type geminiStream struct {
	provider *GeminiProvider
	pulled   *pulled
	ctx      context.Context
	cancel   context.CancelFunc
	span     trace.Span
	start    time.Time

	current   Delta
	err       error
	usage     *TokenUsage
	closeOnce sync.Once
}

func (s *geminiStream) nextResponse() (*genai.GenerateContentResponse, bool) {
	if first := s.pulled.first; first != nil {
		s.pulled.first = nil
		return first, true
	}
	if s.pulled.done || s.err != nil {
		return nil, false
	}
	resp, err, ok := s.pulled.next()
	if !ok {
		s.pulled.done = true
		return nil, false
	}
	if err != nil {
		s.err = err
		return nil, false
	}
	return resp, true
}

func (s *geminiStream) Next() bool {
	for {
		resp, ok := s.nextResponse()
		if !ok {
			return false
		}
		if u := extractTokenUsage(resp); u != nil {
			s.usage = u
		}

		var content, reasoning strings.Builder
		for _, c := range resp.Candidates {
			if c.Content == nil {
				continue
			}
			for _, part := range c.Content.Parts {
				if part.Thought {
					reasoning.WriteString(part.Text)
				} else {
					content.WriteString(part.Text)
				}
			}
			break
		}
		s.current = Delta{Content: content.String(), Reasoning: reasoning.String()}
		if s.current.Content != "" || s.current.Reasoning != "" {
			return true
		}
	}
}

func (s *geminiStream) Current() Delta {
	return s.current
}

func (s *geminiStream) Err() error {
	if s.err != nil {
		return classifyError(s.err, "Gemini stream failed")
	}
	return nil
}

func (s *geminiStream) Close() error {
	s.closeOnce.Do(func() {
		s.pulled.stop()
		s.cancel()

		streamErr := s.Err()
		metrics := s.provider.metrics
		metrics.RecordAICall(s.ctx, config.ProviderGemini, s.provider.operation, time.Since(s.start), streamErr)
		if s.usage != nil {
			metrics.RecordTokens(s.ctx, s.provider.operation, s.usage.InputTokens, s.usage.OutputTokens)
			s.span.SetAttributes(attribute.Int64("ai.tokens.total", s.usage.TotalTokens))
		}
		if streamErr != nil {
			s.span.RecordError(streamErr)
			s.span.SetStatus(codes.Error, "stream failed")
		}
		s.span.End()
	})
	return nil
}

// Complete implements Provider
func (g *GeminiProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()
	ctx, span := g.startSpan(ctx, "complete", req)
	defer span.End()

	start := time.Now()
	cfg := g.contentConfig(req)
	cfg.ThinkingConfig = nil
	result, err := execute(g.breaker, func() (*genai.GenerateContentResponse, error) {
		return withRetry(ctx, g.logger, g.operation, g.maxRetries(), func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(req.User), cfg)
		})
	})
	err = classifyError(err, "Gemini completion failed")
	g.metrics.RecordAICall(ctx, config.ProviderGemini, g.operation, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}

	usage := extractTokenUsage(result)
	if usage != nil {
		g.metrics.RecordTokens(ctx, g.operation, usage.InputTokens, usage.OutputTokens)
		span.SetAttributes(attribute.Int64("ai.tokens.total", usage.TotalTokens))
	}
	return &Completion{Text: result.Text(), Usage: usage}, nil
}

// RawStream implements Provider
func (g *GeminiProvider) RawStream(ctx context.Context, req Request, fn func(raw []byte) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout())
	defer cancel()
	ctx, span := g.startSpan(ctx, "raw_stream", req)
	defer span.End()

	start := time.Now()
	p, err := g.openStream(ctx, req)
	if err != nil {
		err = classifyError(err, "failed to open Gemini stream")
		g.metrics.RecordAICall(ctx, config.ProviderGemini, g.operation, time.Since(start), err)
		span.RecordError(err)
		return err
	}
	defer p.stop()

	s := &geminiStream{pulled: p}
	for {
		resp, ok := s.nextResponse()
		if !ok {
			break
		}
		raw, err := json.Marshal(resp)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeStreamFailed, "failed to encode Gemini response", err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	err = s.Err()
	g.metrics.RecordAICall(ctx, config.ProviderGemini, g.operation, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ValidateKey fetches the configured model, which requires a valid key
func (g *GeminiProvider) ValidateKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := g.client.Models.Get(ctx, g.config.Model, &genai.GetModelConfig{})
	if err != nil {
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", config.ProviderGemini,
			"error", err.Error())
		return classifyError(err, "Gemini key validation failed")
	}
	return nil
}

// ModelInfo implements Provider
func (g *GeminiProvider) ModelInfo() ModelInfo {
	return ModelInfo{Provider: config.ProviderGemini, Name: g.config.Model, Operation: g.operation}
}

// Close implements Provider
func (g *GeminiProvider) Close() error {
	return nil
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
