package ai

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"resumelens/internal/config"
)

// upstreamError builds an API error the way the client reports a response
func upstreamError(status int) error {
	req := httptest.NewRequest(http.MethodPost, "https://api.deepseek.com/chat/completions", nil)
	return &openai.Error{
		StatusCode: status,
		Request:    req,
		Response:   &http.Response{StatusCode: status},
	}
}

func fastRetries(t *testing.T) {
	t.Helper()
	saved := retryBaseDelay
	retryBaseDelay = time.Millisecond
	t.Cleanup(func() { retryBaseDelay = saved })
}

func opConfig(provider, baseURL string) config.OperationAIConfig {
	timeout := 5 * time.Second
	retries := 2
	temperature := float32(0.2)
	model := "deepseek-chat"
	if provider == config.ProviderGemini {
		model = "gemini-2.5-flash"
	}
	return config.OperationAIConfig{
		Provider:    provider,
		Model:       model,
		BaseURL:     baseURL,
		APIKey:      "good-key",
		Timeout:     &timeout,
		MaxRetries:  &retries,
		Temperature: &temperature,
	}
}
