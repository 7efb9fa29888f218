package pipeline

import (
	"resumelens/internal/errors"
	"resumelens/internal/types"
)

var errEmptyResponse = errors.NewAIError(errors.ErrCodeMalformedResponse, "model returned an empty response", nil)

// Passthrough forwards every content delta as a delta event. It backs the
// streaming hierarchy format, whose output is markdown rather than JSON and
// whose vocabulary is start, delta, done and error: reasoning is not forwarded.
type Passthrough struct {
	name string
	text []byte
}

// NewPassthrough returns a passthrough extractor reported as name.
func NewPassthrough(name string) *Passthrough {
	return &Passthrough{name: name}
}

func (p *Passthrough) Name() string {
	return p.name
}

func (p *Passthrough) Start() []types.Event {
	return []types.Event{{Type: types.EventStart}}
}

func (p *Passthrough) Feed(delta string) []types.Event {
	if delta == "" {
		return nil
	}
	p.text = append(p.text, delta...)
	return []types.Event{{Type: types.EventDelta, Value: delta}}
}

func (p *Passthrough) SkipsReasoning() bool {
	return true
}

// Finish fails when the model produced nothing at all.
func (p *Passthrough) Finish() ([]string, error) {
	if len(p.text) == 0 {
		return nil, errEmptyResponse
	}
	return nil, nil
}

// Text returns everything forwarded so far.
func (p *Passthrough) Text() string {
	return string(p.text)
}
