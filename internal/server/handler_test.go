package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelens/internal/config"
	"resumelens/internal/errors"
	"resumelens/internal/keyexchange"
	"resumelens/internal/templates"
	"resumelens/internal/types"
)

const twoParagraphs = "Led team of 5 to ship X (+30% conv.)\n\nResponsible for various tasks"

func TestHandleAnalyze_Streams(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.postJSON("/deepseek/analyze-resume", types.AnalyzeRequest{Content: twoParagraphs})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	frames := readFrames(t, rec.Body.String())
	assert.Equal(t, []string{"start", "thinking", "weakness", "score", "done", "[DONE]"}, frameTypes(frames))

	assert.JSONEq(t, `2`, string(frames[0].Value))
	assert.JSONEq(t, `"Reading the resume."`, string(frames[1].Value))
	assert.JSONEq(t, `{"content":"Responsible for various tasks","reason":"vague, no metrics"}`, string(frames[2].Value))
	assert.JSONEq(t, `72`, string(frames[3].Value))
}

func TestHandleAnalyze_RejectedBeforeStreaming(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name        string
		body        any
		contentType string
		wantStatus  int
		wantCode    string
	}{
		{
			name:        "missing content",
			body:        map[string]any{"targetRole": "SRE"},
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantCode:    errors.ErrCodeInvalidRequest,
		},
		{
			name:        "blank content",
			body:        types.AnalyzeRequest{Content: " \n\n \n"},
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantCode:    errors.ErrCodeInvalidRequest,
		},
		{
			name:        "wrong content type",
			body:        types.AnalyzeRequest{Content: twoParagraphs},
			contentType: "text/plain",
			wantStatus:  http.StatusBadRequest,
			wantCode:    errors.ErrCodeInvalidRequest,
		},
		{
			name:        "undecryptable key",
			body:        types.AnalyzeRequest{Content: twoParagraphs, EncryptedAPIKey: "not base64!"},
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantCode:    errors.ErrCodeDecryptFailed,
		},
		{
			name:        "model outside allow list",
			body:        types.AnalyzeRequest{Content: twoParagraphs, Model: "gpt-4o"},
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
			wantCode:    errors.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/deepseek/analyze-resume", bytes.NewReader(data))
			req.Header.Set("Content-Type", tt.contentType)
			rec := ts.do(req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
	assert.Zero(t, ts.upstream.streams.Load())
}

func TestHandleAnalyze_UpstreamRejectsCallerKey(t *testing.T) {
	ts := newTestServer(t, nil)

	encrypted, err := keyexchange.Encrypt(ts.keys.PublicKeyPEM(), "bad-key")
	require.NoError(t, err)

	rec := ts.postJSON("/deepseek/analyze-resume", types.AnalyzeRequest{Content: twoParagraphs, EncryptedAPIKey: encrypted})
	require.Equal(t, http.StatusOK, rec.Code)

	frames := readFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, "start", frames[0].Type)
	last := frames[len(frames)-1]
	assert.False(t, last.Done, "a failed stream has no [DONE] marker")
	assert.Equal(t, "error", last.Type)
}

func TestHandleDeepInsights_Streams(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.set(`{"timelineIssues":[{"type":"gap","description":"Eight months unexplained","severity":"medium","affectedPeriods":["2021"]}],"skillIssues":[],"metricSuggestions":[],"overallSuggestion":"Add numbers."}`, "")

	rec := ts.postJSON("/deepseek/analyze/deep-insights", types.AnalyzeRequest{Content: twoParagraphs})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	frames := readFrames(t, rec.Body.String())
	got := frameTypes(frames)
	assert.Contains(t, got, "timeline_issue")
	assert.Contains(t, got, "overall")
	assert.Equal(t, "[DONE]", got[len(got)-1])
}

func TestHandleFormat_CachesResult(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.set("", "  # Jane Doe\n\n## Experience  ")

	for range 3 {
		rec := ts.postJSON("/deepseek/format/hierarchy", types.FormatRequest{Content: "Jane Doe experience"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp types.FormatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "# Jane Doe\n\n## Experience", resp.Content)
	}
	assert.Equal(t, int32(1), ts.upstream.completions.Load())
	assert.Equal(t, 1, ts.formats.Len())
}

func TestHandleFormat_EmptyDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.set("", "   ")

	rec := ts.postJSON("/deepseek/format/hierarchy", types.FormatRequest{Content: "Jane Doe"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, errors.ErrCodeMalformedResponse, decodeError(t, rec).Error)
	assert.Zero(t, ts.formats.Len(), "failures are not cached")
}

func TestHandleFormatStream(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.set("# Jane Doe\n\n## Experience", "")

	rec := ts.postJSON("/deepseek/format/hierarchy/stream", types.FormatRequest{Content: "Jane Doe"})
	require.Equal(t, http.StatusOK, rec.Code)

	frames := readFrames(t, rec.Body.String())
	assert.NotContains(t, frameTypes(frames), "thinking", "reasoning is not part of the format stream")
	assert.Equal(t, "start", frames[0].Type)

	var text strings.Builder
	for _, f := range frames {
		if f.Type == "delta" {
			var s string
			require.NoError(t, json.Unmarshal(f.Value, &s))
			text.WriteString(s)
		}
	}
	assert.Equal(t, "# Jane Doe\n\n## Experience", text.String())
}

func TestHandleComplete(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.set("", "Tailored summary.")

	t.Run("json", func(t *testing.T) {
		rec := ts.postJSON("/deepseek/complete", types.PromptRequest{Prompt: "Summarize"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp types.CompleteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Tailored summary.", resp.Result)
	})

	t.Run("multipart with file", func(t *testing.T) {
		req := multipartRequest(t, "/deepseek/complete", "notes.txt", "Some notes", map[string]string{"prompt": "What is this?"})
		rec := ts.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("multipart without file", func(t *testing.T) {
		req := multipartRequest(t, "/deepseek/complete", "", "", map[string]string{"prompt": "What is this?"})
		rec := ts.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRawStream(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.upstream.set("hello world", "")

	rec := ts.postJSON("/deepseek", types.PromptRequest{Prompt: "Say hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}

func TestHandleTagCandidates(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("dedupes and caps", func(t *testing.T) {
		ts.upstream.set("", "```json\n{\"candidates\":[\"Shipped X\",\" Shipped X \",\"\",\"Led X\",\"Built X\"]}\n```")
		rec := ts.postJSON("/deepseek/optimize-tag-candidates", types.TagCandidatesRequest{Text: "Did X", CandidateCount: 2})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp types.TagCandidates
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []string{"Shipped X", "Led X"}, resp.Candidates)
	})

	t.Run("count out of range", func(t *testing.T) {
		rec := ts.postJSON("/deepseek/optimize-tag-candidates", types.TagCandidatesRequest{Text: "Did X", CandidateCount: 50})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unusable answer", func(t *testing.T) {
		ts.upstream.set("", "I cannot help with that.")
		rec := ts.postJSON("/deepseek/optimize-tag-candidates", types.TagCandidatesRequest{Text: "Did X"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, errors.ErrCodeMalformedResponse, decodeError(t, rec).Error)
	})
}

func TestHandleValidateKey(t *testing.T) {
	ts := newTestServer(t, nil)

	encrypt := func(key string) string {
		enc, err := keyexchange.Encrypt(ts.keys.PublicKeyPEM(), key)
		require.NoError(t, err)
		return enc
	}

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantValid  bool
	}{
		{name: "accepted", key: encrypt("good-key"), wantStatus: http.StatusOK, wantValid: true},
		{name: "rejected upstream", key: encrypt("bad-key"), wantStatus: http.StatusOK},
		{name: "undecryptable", key: "AAAA", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.postJSON("/deepseek/validate-key", types.ValidateKeyRequest{EncryptedAPIKey: tt.key})
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp types.ValidateKeyResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantValid, resp.Valid)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestHandlePublicKey(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/crypto/deepseek-public-key", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp types.PublicKeyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, keyexchange.Algorithm, resp.Algorithm)
	assert.Equal(t, keyexchange.Hash, resp.Hash)

	enc, err := keyexchange.Encrypt(resp.PublicKey, "sk-roundtrip")
	require.NoError(t, err)
	plain, err := ts.keys.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "sk-roundtrip", plain)
}

func TestHandleFileParse(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("text file", func(t *testing.T) {
		rec := ts.do(multipartRequest(t, "/file/parse", "resume.md", "# Jane\n\nEngineer", nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var parsed types.ParsedFile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
		assert.Contains(t, parsed.Content, "Engineer")
		assert.Equal(t, "resume.md", parsed.Metadata.Filename)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		rec := ts.do(multipartRequest(t, "/file/parse", "tool.exe", "MZ", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upload over the limit", func(t *testing.T) {
		big := strings.Repeat("a", int(ts.AppConfig.App.MaxFileSize+multipartOverhead))
		rec := ts.do(multipartRequest(t, "/file/parse", "big.txt", big, nil))
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusRequestEntityTooLarge}, rec.Code)
	})
}

func TestHandleResumeTemplate(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/file/template/resume", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), templates.ResumeFilename)
	assert.Equal(t, templates.Resume(), rec.Body.Bytes())
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Server.APIKeys = []string{"client-key-1234"} })

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong", header: "X-API-Key", value: "nope", wantStatus: http.StatusUnauthorized},
		{name: "header", header: "X-API-Key", value: "client-key-1234", wantStatus: http.StatusOK},
		{name: "bearer", header: "Authorization", value: "Bearer client-key-1234", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/crypto/deepseek-public-key", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			assert.Equal(t, tt.wantStatus, ts.do(req).Code)
		})
	}

	t.Run("health is open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	})

	t.Run("rotation", func(t *testing.T) {
		ts.SetAPIKeys([]string{"client-key-5678"})
		req := httptest.NewRequest(http.MethodGet, "/crypto/deepseek-public-key", nil)
		req.Header.Set("X-API-Key", "client-key-1234")
		assert.Equal(t, http.StatusUnauthorized, ts.do(req).Code)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Server.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 1, ByIP: true}
	})

	get := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/crypto/deepseek-public-key", nil)
		req.RemoteAddr = ip + ":4242"
		return ts.do(req)
	}

	assert.Equal(t, http.StatusOK, get("192.0.2.1").Code)

	rec := get("192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, errors.ErrCodeRateLimited, decodeError(t, rec).Error)

	assert.Equal(t, http.StatusOK, get("192.0.2.2").Code, "other clients keep their own bucket")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/deepseek/analyze-resume", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := ts.do(req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
		assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := ts.do(req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "3f0c5b8e-7a1d-4c55-9a37-1f3d2f9e8b10")
	assert.Equal(t, "3f0c5b8e-7a1d-4c55-9a37-1f3d2f9e8b10", ts.do(req).Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "<script>")
	id := ts.do(req).Header().Get("X-Request-ID")
	assert.NotEqual(t, "<script>", id)
	assert.Len(t, id, 36)
}

func TestHealthAndStats(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health["ai_models"], config.OpAnalyze)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))
}

func TestConcurrentStreams(t *testing.T) {
	ts := newTestServer(t, nil)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := ts.postJSON("/deepseek/analyze-resume", types.AnalyzeRequest{Content: twoParagraphs})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), ts.upstream.streams.Load())
}

// multipartRequest posts a form with an optional "file" part
func multipartRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
