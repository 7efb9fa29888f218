package ai

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelens/internal/errors"
)

func TestWithRetry(t *testing.T) {
	fastRetries(t)

	tests := []struct {
		name      string
		failures  int
		err       error
		wantErr   bool
		wantCalls int
	}{
		{"succeeds first time", 0, nil, false, 1},
		{"recovers from rate limit", 2, upstreamError(http.StatusTooManyRequests), false, 3},
		{"gives up after max retries", 5, upstreamError(http.StatusServiceUnavailable), true, 3},
		{"does not retry auth failures", 5, upstreamError(http.StatusUnauthorized), true, 1},
		{"does not retry plain errors", 5, stderrors.New("bad json"), true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := withRetry(context.Background(), errors.Discard(), "test", 2, func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", tt.err
				}
				return "done", nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "done", got)
		})
	}
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	saved := retryBaseDelay
	retryBaseDelay = time.Hour
	t.Cleanup(func() { retryBaseDelay = saved })

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, errors.Discard(), "test", 3, func() (int, error) {
		calls++
		cancel()
		return 0, upstreamError(http.StatusBadGateway)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	first := backoff(1)
	assert.GreaterOrEqual(t, first, retryBaseDelay)
	assert.LessOrEqual(t, first, retryBaseDelay+retryBaseDelay/10)

	third := backoff(3)
	assert.GreaterOrEqual(t, third, 4*retryBaseDelay)

	assert.Equal(t, 30*time.Second, backoff(20))
}
