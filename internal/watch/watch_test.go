package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumelens/internal/errors"
)

func TestWatcher_ReloadsOnceAfterBurst(t *testing.T) {
	dir := t.TempDir()
	prompt := filepath.Join(dir, "analyze.txt")
	other := filepath.Join(dir, "unrelated.txt")
	require.NoError(t, os.WriteFile(prompt, []byte("v1"), 0o600))

	var mu sync.Mutex
	var calls [][]string
	w := New("prompts", []string{prompt, prompt, ""}, 50*time.Millisecond, func(changed []string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, changed)
	}, errors.Discard())
	require.Len(t, w.Files(), 1)

	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start())

	// mtime granularity can be coarse; move it explicitly
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	for i := range 3 {
		require.NoError(t, os.WriteFile(prompt, []byte{byte('a' + i)}, 0o600))
	}
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(prompt, future, future))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{prompt}, calls[0])
}

func TestWatcher_NoFiles(t *testing.T) {
	w := New("tls", nil, 0, func([]string) { t.Fatal("unexpected reload") }, errors.Discard())
	require.NoError(t, w.Start())
	assert.False(t, w.IsRunning())
	assert.NoError(t, w.Stop())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cert.pem")
	require.NoError(t, os.WriteFile(file, []byte("pem"), 0o600))

	w := New("tls", []string{file}, time.Millisecond, func([]string) {}, errors.Discard())
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}
