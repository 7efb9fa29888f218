package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"resumelens/internal/observability"
)

// formatCache keeps hierarchy-format results by content and model, and runs
// concurrent identical requests once
type formatCache struct {
	entries *lru.Cache[string, string] // nil when caching is disabled
	group   singleflight.Group
	metrics *observability.Metrics
}

func newFormatCache(size int, metrics *observability.Metrics) (*formatCache, error) {
	c := &formatCache{metrics: metrics}
	if size > 0 {
		entries, err := lru.New[string, string](size)
		if err != nil {
			return nil, err
		}
		c.entries = entries
	}
	return c, nil
}

func formatKey(model, content string) string {
	sum := sha256.Sum256([]byte(content))
	return model + ":" + hex.EncodeToString(sum[:])
}

// Do returns the cached result for key or runs fn. fn runs detached from the
// caller so one client leaving does not fail the others waiting on it.
func (c *formatCache) Do(ctx context.Context, key string, fn func(ctx context.Context) (string, error)) (string, error) {
	if c.entries != nil {
		if v, ok := c.entries.Get(key); ok {
			c.metrics.RecordFormatCache(ctx, true)
			return v, nil
		}
		c.metrics.RecordFormatCache(ctx, false)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fn(detached)
		if err == nil && c.entries != nil {
			c.entries.Add(key, v)
		}
		return v, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len returns the number of cached results
func (c *formatCache) Len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
