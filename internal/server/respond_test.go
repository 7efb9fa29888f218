package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelens/internal/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"body too large", fmt.Errorf("read: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge},
		{"file too large", errors.NewValidationError(errors.ErrCodeFileTooLarge, "too big", nil), http.StatusRequestEntityTooLarge},
		{"unauthorized", errors.NewAIError(errors.ErrCodeUnauthorized, "key rejected", nil), http.StatusUnauthorized},
		{"rate limited", errors.NewAIError(errors.ErrCodeRateLimited, "slow down", nil), http.StatusTooManyRequests},
		{"circuit open", errors.NewAIError(errors.ErrCodeCircuitOpen, "open", nil), http.StatusServiceUnavailable},
		{"timeout", errors.NewNetworkError(errors.ErrCodeAITimeout, "slow", nil), http.StatusGatewayTimeout},
		{"missing key", errors.NewConfigError(errors.ErrCodeMissingAPIKey, "none", nil), http.StatusBadRequest},
		{"validation", errors.NewValidationError(errors.ErrCodeInvalidRequest, "bad", nil), http.StatusBadRequest},
		{"decrypt", errors.NewValidationError(errors.ErrCodeDecryptFailed, "bad", nil), http.StatusBadRequest},
		{"upstream", errors.NewAIError(errors.ErrCodeAIServiceFailed, "down", nil), http.StatusBadGateway},
		{"config", errors.NewConfigError(errors.ErrCodeInvalidConfig, "bad", nil), http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		count   int
		want    []string
		wantErr bool
	}{
		{name: "plain", text: `{"candidates":["a","b"]}`, count: 3, want: []string{"a", "b"}},
		{name: "fenced with prose", text: "Sure:\n```json\n{\"candidates\":[\"a\"]}\n```", count: 3, want: []string{"a"}},
		{name: "capped", text: `{"candidates":["a","b","c","d"]}`, count: 2, want: []string{"a", "b"}},
		{name: "blanks and duplicates", text: `{"candidates":[" a ","a","", "b"]}`, count: 3, want: []string{"a", "b"}},
		{name: "no object", text: "no idea", count: 3, wantErr: true},
		{name: "empty list", text: `{"candidates":[]}`, count: 3, wantErr: true},
		{name: "wrong shape", text: `{"candidates":"a"}`, count: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCandidates(tt.text, tt.count)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedResponse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractValidationErrors(t *testing.T) {
	v := newValidator()
	type body struct {
		Content string `json:"content" validate:"required"`
		Count   int    `json:"candidateCount" validate:"omitempty,min=1,max=10"`
	}

	err := v.Struct(body{Count: 20})
	require.Error(t, err)
	msg := extractValidationErrors(err)
	assert.Contains(t, msg, "content is required")
	assert.Contains(t, msg, "candidateCount must satisfy max=10")
}
