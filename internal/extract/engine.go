package extract

import (
	"encoding/json"
	"fmt"
	"sort"

	"resumelens/internal/errors"
	"resumelens/internal/types"
)

// Schema declares everything an engine extracts from one kind of response.
type Schema struct {
	Name     string
	Shapes   []Shape
	Singles  []Single
	Preamble []types.Event
	// Target returns a pointer the final document is decoded into.
	Target func() any
}

type emission struct {
	offset int
	event  types.Event
}

// Engine is the extraction state of one stream. It is not safe for
// concurrent use and is discarded when the stream ends.
type Engine struct {
	schema    *Schema
	buf       Buffer
	tracker   *Tracker
	validator *Validator
	// matches caches shape matching per object start offset. Valid because the
	// buffer only grows, so a closed object never changes.
	matches []map[int]*Candidate
}

// Option configures an Engine.
type Option func(*Engine)

// WithValidator validates the final document against a schema.
func WithValidator(v *Validator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// NewEngine creates the extraction state for one stream of schema.
func NewEngine(schema *Schema, opts ...Option) *Engine {
	e := &Engine{
		schema:  schema,
		tracker: NewTracker(),
		matches: make([]map[int]*Candidate, len(schema.Shapes)),
	}
	for i := range e.matches {
		e.matches[i] = make(map[int]*Candidate)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the schema name.
func (e *Engine) Name() string {
	return e.schema.Name
}

// Start returns the events sent before any delta.
func (e *Engine) Start() []types.Event {
	return e.schema.Preamble
}

// Feed appends delta to the buffer, rescans the whole buffer and returns the
// findings that became complete, in buffer order.
func (e *Engine) Feed(delta string) []types.Event {
	if delta == "" {
		return nil
	}
	e.buf.Append(delta)
	return e.scan()
}

func (e *Engine) scan() []types.Event {
	doc := Scan(e.buf.String())

	var found []emission
	for i, shape := range e.schema.Shapes {
		found = append(found, e.scanShape(doc, i, shape)...)
	}
	for _, single := range e.schema.Singles {
		if em, ok := e.scanSingle(doc, single); ok {
			found = append(found, em)
		}
	}

	if len(found) == 0 {
		return nil
	}
	sort.SliceStable(found, func(a, b int) bool {
		return found[a].offset < found[b].offset
	})
	events := make([]types.Event, len(found))
	for i, em := range found {
		events[i] = em.event
	}
	return events
}

func (e *Engine) scanShape(doc *Document, i int, shape Shape) []emission {
	cache := e.matches[i]
	occurrences := make(map[string]int)
	kind := string(shape.Event)

	var out []emission
	for _, start := range doc.Objects() {
		c, seen := cache[start]
		if !seen {
			raw, _ := doc.Raw(start)
			if m, ok := shape.match(raw); ok {
				m.Offset = start
				c = &m
			}
			cache[start] = c
		}
		if c == nil {
			continue
		}

		value, id, ok := shape.Resolve(doc, *c)
		if !ok {
			continue
		}
		if shape.Ordinal {
			occurrences[id]++
			id = fmt.Sprintf("%s#%d", id, occurrences[id])
		}
		if !e.tracker.Admit(kind, id) || value == nil {
			continue
		}
		out = append(out, emission{offset: start, event: types.Event{Type: shape.Event, Value: value}})
	}
	return out
}

func (e *Engine) scanSingle(doc *Document, single Single) (emission, bool) {
	keys := doc.RootKeys(single.Key)
	if single.Mode == OnChange {
		// the latest complete render wins
		for l, r := 0, len(keys)-1; l < r; l, r = l+1, r-1 {
			keys[l], keys[r] = keys[r], keys[l]
		}
	}

	kind := string(single.Event)
	for _, k := range keys {
		raw, ok := doc.Value(k)
		if !ok {
			continue
		}
		value, ok := single.Decode(raw)
		if !ok {
			continue
		}

		switch single.Mode {
		case Once:
			if !e.tracker.Admit(kind, "once") {
				return emission{}, false
			}
		case OnChange:
			canonical, _ := json.Marshal(value)
			if !e.tracker.Changed(kind, string(canonical)) {
				return emission{}, false
			}
		}
		return emission{offset: k.Offset, event: types.Event{Type: single.Event, Value: value}}, true
	}
	return emission{}, false
}

// Finish decodes the completed response. A response that is not a JSON
// document of the target type is an error. Schema violations are returned as
// warnings since every finding already sent was individually well formed.
func (e *Engine) Finish() (warnings []string, err error) {
	payload, ok := Payload(e.buf.String())
	if !ok {
		return nil, errors.NewAIError(errors.ErrCodeMalformedResponse, "model response contained no JSON object", nil).
			WithContext("schema", e.schema.Name).
			WithContext("response_bytes", e.buf.Len())
	}

	if e.schema.Target != nil {
		if err := decodeLenient([]byte(payload), e.schema.Target()); err != nil {
			return nil, errors.NewAIError(errors.ErrCodeMalformedResponse, "model returned malformed JSON", err).
				WithContext("schema", e.schema.Name)
		}
	}

	if e.validator == nil {
		return nil, nil
	}
	problems, err := e.validator.Validate(payload)
	if err != nil {
		return []string{err.Error()}, nil
	}
	return problems, nil
}
