package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resumelens/internal/ai"
	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/keyexchange"
	"resumelens/internal/observability"
)

const basicAnswer = `{"strength":[{"paragraphIndex":0,"reason":"quantified impact"}],"weakness":[{"paragraphIndex":1,"reason":"vague, no metrics"}],"score":72}`

// upstream is an OpenAI-compatible provider. Streams send content in small
// chunks; completions answer with completion. Any key but "good-key" is
// rejected.
type upstream struct {
	mu         sync.Mutex
	content    string
	completion string
	delay      time.Duration

	streams     atomic.Int32
	completions atomic.Int32
}

func (u *upstream) set(content, completion string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.content, u.completion = content, completion
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") != "Bearer good-key" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Authentication Fails","type":"authentication_error"}}`))
		return
	}

	u.mu.Lock()
	content, completion, delay := u.content, u.completion, u.delay
	u.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/models"):
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"deepseek-chat","object":"model","created":0,"owned_by":"deepseek"}]}`))
	case strings.HasSuffix(r.URL.Path, "/chat/completions"):
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if stream, _ := body["stream"].(bool); stream {
			u.streams.Add(1)
			writeChunks(w, content)
			return
		}
		u.completions.Add(1)
		time.Sleep(delay)
		msg, _ := json.Marshal(completion)
		_, _ = fmt.Fprintf(w, `{"id":"x","object":"chat.completion","created":1,"model":"deepseek-chat","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, msg)
	default:
		http.NotFound(w, r)
	}
}

func writeChunks(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/event-stream")
	chunk := func(delta map[string]any, finish string) {
		choice := map[string]any{"index": 0, "delta": delta}
		if finish != "" {
			choice["finish_reason"] = finish
		}
		data, _ := json.Marshal(map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "deepseek-chat",
			"choices": []any{choice},
		})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	}

	chunk(map[string]any{"role": "assistant", "reasoning_content": "Reading the resume."}, "")
	for len(content) > 0 {
		n := min(16, len(content))
		chunk(map[string]any{"content": content[:n]}, "")
		content = content[n:]
	}
	chunk(map[string]any{"content": ""}, "stop")
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
}

type testServer struct {
	*Server
	upstream *upstream
	handler  http.Handler
}

// newTestServer wires a server to a fake upstream. mutate adjusts the config
// before the server is built.
func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	up := &upstream{content: basicAnswer, completion: "# Resume"}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.AI.Provider = config.ProviderDeepSeek
	cfg.AI.Model = "deepseek-chat"
	cfg.AI.AllowedModels = []string{"deepseek-chat", "deepseek-reasoner"}
	cfg.AI.BaseURL = srv.URL
	cfg.AI.APIKey = "good-key"
	cfg.AI.Timeout = 5 * time.Second
	cfg.App.MaxFileSize = 1 << 20
	cfg.App.MaxRequestSize = 1 << 20
	cfg.App.FormatCacheSize = 16
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.TLS.Mode = "disabled"
	cfg.Server.CORS.AllowedOrigins = []string{"https://app.example.com"}
	cfg.Server.CORS.MaxAge = 600
	if mutate != nil {
		mutate(cfg)
	}

	logger := errors.Discard()
	om, err := observability.NewManager(observability.Settings{ServiceName: "test"})
	require.NoError(t, err)
	keys := testKeyPair(t)

	s, err := NewServer(cfg, Options{
		Version:       "test",
		Factory:       ai.NewFactory(cfg, ai.NewPrompts(nil), srv.Client(), om.Metrics(), logger),
		Keys:          keys,
		Observability: om,
		Logger:        logger,
	})
	require.NoError(t, err)
	t.Cleanup(s.cleanupRateLimiter)

	return &testServer{Server: s, upstream: up, handler: s.Handler()}
}

var (
	keyPairOnce sync.Once
	keyPair     *keyexchange.KeyPair
	keyPairErr  error
)

// testKeyPair shares one RSA key across tests, generation is slow
func testKeyPair(t *testing.T) *keyexchange.KeyPair {
	t.Helper()
	keyPairOnce.Do(func() { keyPair, keyPairErr = keyexchange.Generate() })
	require.NoError(t, keyPairErr)
	return keyPair
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postJSON(path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

// frame is one decoded SSE data line
type frame struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Done  bool            `json:"-"`
}

func readFrames(t *testing.T, body string) []frame {
	t.Helper()
	var frames []frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected line %q", line)
		if payload == "[DONE]" {
			frames = append(frames, frame{Done: true})
			continue
		}
		var f frame
		require.NoError(t, json.Unmarshal([]byte(payload), &f))
		frames = append(frames, f)
	}
	return frames
}

func frameTypes(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		if f.Done {
			out[i] = "[DONE]"
			continue
		}
		out[i] = f.Type
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
