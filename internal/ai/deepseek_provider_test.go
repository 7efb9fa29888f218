package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelens/internal/config"
	"resumelens/internal/errors"
)

var deepSeekChunks = []string{
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"role":"assistant","reasoning_content":"Reading the resume."}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"content":"{\"score\":"}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"content":""}}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"deepseek-reasoner","choices":[{"index":0,"delta":{"content":"72}"},"finish_reason":"stop"}]}`,
	`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"deepseek-reasoner","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
}

// fakeDeepSeek serves an OpenAI-compatible API. The first failures requests
// get a 503; any key but "good-key" gets a 401.
type fakeDeepSeek struct {
	failures int32
	requests atomic.Int32

	mu       sync.Mutex
	lastBody map[string]any
}

func (f *fakeDeepSeek) body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeDeepSeek) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.requests.Add(1)
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("Authorization") != "Bearer good-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Authentication Fails","type":"authentication_error","code":"invalid_request_error"}}`))
		return
	}
	if n <= f.failures {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"Server busy","type":"server_error"}}`))
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, "/models"):
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"deepseek-chat","object":"model","created":0,"owned_by":"deepseek"}]}`))
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastBody = body
		f.mu.Unlock()
		if stream, _ := body["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, chunk := range deepSeekChunks {
				_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			}
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			return
		}
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"deepseek-chat","choices":[{"index":0,"message":{"role":"assistant","content":"Tailored summary."},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestDeepSeek(t *testing.T, fake *fakeDeepSeek, mutate func(*config.OperationAIConfig)) *DeepSeekProvider {
	t.Helper()
	fastRetries(t)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := opConfig(config.ProviderDeepSeek, srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	return NewDeepSeekProvider(cfg, config.OpAnalyze, nil, srv.Client(), nil, errors.Discard())
}

func drain(t *testing.T, s TokenStream) (content, reasoning string) {
	t.Helper()
	var c, r strings.Builder
	for s.Next() {
		c.WriteString(s.Current().Content)
		r.WriteString(s.Current().Reasoning)
	}
	require.NoError(t, s.Err())
	return c.String(), r.String()
}

func TestDeepSeekProvider_Stream(t *testing.T) {
	fake := &fakeDeepSeek{}
	p := newTestDeepSeek(t, fake, nil)

	stream, err := p.Stream(context.Background(), Request{System: "sys", User: "resume", JSON: true})
	require.NoError(t, err)
	defer stream.Close()

	content, reasoning := drain(t, stream)
	assert.Equal(t, `{"score":72}`, content)
	assert.Equal(t, "Reading the resume.", reasoning)

	assert.Equal(t, "deepseek-chat", fake.body()["model"])
	format, _ := fake.body()["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
	messages, _ := fake.body()["messages"].([]any)
	assert.Len(t, messages, 2)

	ds := stream.(*deepSeekStream)
	require.NotNil(t, ds.usage)
	assert.Equal(t, int64(15), ds.usage.TotalTokens)

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestDeepSeekProvider_StreamRetriesBeforeFirstByte(t *testing.T) {
	fake := &fakeDeepSeek{failures: 2}
	p := newTestDeepSeek(t, fake, nil)

	stream, err := p.Stream(context.Background(), Request{User: "resume"})
	require.NoError(t, err)
	defer stream.Close()

	content, _ := drain(t, stream)
	assert.Equal(t, `{"score":72}`, content)
	assert.Equal(t, int32(3), fake.requests.Load())
}

func TestDeepSeekProvider_RejectedKey(t *testing.T) {
	fake := &fakeDeepSeek{}
	p := newTestDeepSeek(t, fake, func(c *config.OperationAIConfig) { c.APIKey = "bad-key" })

	_, err := p.Stream(context.Background(), Request{User: "resume"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidAPIKey))
	assert.Equal(t, int32(1), fake.requests.Load(), "auth failures are not retried")

	err = p.ValidateKey(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidAPIKey))
}

func TestDeepSeekProvider_ValidateKey(t *testing.T) {
	p := newTestDeepSeek(t, &fakeDeepSeek{}, nil)
	assert.NoError(t, p.ValidateKey(context.Background()))
}

func TestDeepSeekProvider_Complete(t *testing.T) {
	fake := &fakeDeepSeek{failures: 1}
	p := newTestDeepSeek(t, fake, nil)

	got, err := p.Complete(context.Background(), Request{User: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, "Tailored summary.", got.Text)
	assert.Equal(t, int64(5), got.Usage.TotalTokens)
	assert.Nil(t, fake.body()["stream"])
}

func TestDeepSeekProvider_RawStream(t *testing.T) {
	p := newTestDeepSeek(t, &fakeDeepSeek{}, nil)

	var lines []string
	err := p.RawStream(context.Background(), Request{User: "hi"}, func(raw []byte) error {
		lines = append(lines, string(raw))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, lines, len(deepSeekChunks))
	assert.JSONEq(t, deepSeekChunks[0], lines[0])
}

func TestDeepSeekProvider_ModelInfo(t *testing.T) {
	p := newTestDeepSeek(t, &fakeDeepSeek{}, nil)
	assert.Equal(t, ModelInfo{Provider: "deepseek", Name: "deepseek-chat", Operation: config.OpAnalyze}, p.ModelInfo())
}
