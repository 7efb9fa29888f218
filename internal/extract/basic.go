package extract

import (
	"strconv"

	"resumelens/internal/types"
)

const (
	SectionStrength = "strength"
	SectionWeakness = "weakness"
)

var paragraphItem = []Field{
	{Name: "paragraphIndex", Kind: Integer},
	{Name: "reason", Kind: String},
}

// BasicSchema extracts weakness findings and the overall score. A weakness
// item is identified by its section and paragraph index, and its event carries
// the text of the paragraph it points at.
func BasicSchema(paragraphs []string) *Schema {
	sections := NewSections(SectionStrength, SectionWeakness)

	resolve := func(doc *Document, c Candidate) (any, string, bool) {
		section, ok := sections.Classify(doc, c.Offset)
		if !ok {
			return nil, "", false
		}
		index := c.Int("paragraphIndex")
		id := section + ":" + strconv.Itoa(index)
		// strength items are tracked but not part of the event vocabulary
		if section != SectionWeakness || index >= len(paragraphs) {
			return nil, id, true
		}
		return types.Weakness{Content: paragraphs[index], Reason: c.Str("reason")}, id, true
	}

	return &Schema{
		Name: "basic",
		Shapes: []Shape{
			{Event: types.EventWeakness, Fields: paragraphItem, Resolve: resolve},
		},
		Singles: []Single{
			{Event: types.EventScore, Key: "score", Mode: OnChange, Decode: IntegerIn(0, 100)},
		},
		Preamble: []types.Event{
			{Type: types.EventStart, Value: len(paragraphs)},
		},
		Target: func() any { return &types.BasicAnalysis{} },
	}
}

// NewBasic returns the engine for a basic analysis over paragraphs.
func NewBasic(paragraphs []string, opts ...Option) *Engine {
	return NewEngine(BasicSchema(paragraphs), opts...)
}
