package ai

import (
	"context"
)

// Delta is one fragment of a streamed response. Reasoning carries the
// model's side channel and is never part of the answer.
type Delta struct {
	Content   string
	Reasoning string
}

// TokenStream is an open upstream stream. Close aborts the upstream request
// and is safe to call more than once.
type TokenStream interface {
	Next() bool
	Current() Delta
	Err() error
	Close() error
}

// Request is one model call.
type Request struct {
	System string
	User   string
	// JSON asks the model for a single JSON object.
	JSON bool
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Completion is the result of a non-streaming call.
type Completion struct {
	Text  string
	Usage *TokenUsage
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	Operation string `json:"operation"`
}

// Provider is a model backend bound to one operation, model and key.
type Provider interface {
	// Stream opens a streaming call. Opening is retried; once the stream
	// yields data nothing is.
	Stream(ctx context.Context, req Request) (TokenStream, error)
	Complete(ctx context.Context, req Request) (*Completion, error)
	// RawStream passes every upstream message to fn as JSON.
	RawStream(ctx context.Context, req Request, fn func(raw []byte) error) error
	// ValidateKey checks that the provider accepts the configured key.
	ValidateKey(ctx context.Context) error
	ModelInfo() ModelInfo
	Close() error
}
