package pipeline

import (
	"sync"

	"resumelens/internal/types"
)

// Collector keeps events in memory. The CLI renders them once the stream
// ends.
type Collector struct {
	mu       sync.Mutex
	events   []types.Event
	finished bool
}

func (c *Collector) Emit(ev types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *Collector) Done() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	return nil
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events...)
}

// Finished reports whether the done marker was written.
func (c *Collector) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}
