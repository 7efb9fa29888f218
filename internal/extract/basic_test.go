package extract

import (
	"testing"

	"resumelens/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunks splits s into n pieces of roughly equal size.
func chunks(s string, n int) []string {
	size := (len(s) + n - 1) / n
	var out []string
	for len(s) > 0 {
		end := min(size, len(s))
		out = append(out, s[:end])
		s = s[end:]
	}
	return out
}

func chars(s string) []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i : i+1]
	}
	return out
}

func feedAll(e *Engine, deltas []string) []types.Event {
	var events []types.Event
	for _, d := range deltas {
		events = append(events, e.Feed(d)...)
	}
	return events
}

const basicAnswer = `{"strength":[{"paragraphIndex":0,"reason":"quantified impact"}],"weakness":[{"paragraphIndex":1,"reason":"vague, no metrics"}],"score":72}`

var basicAnswerParagraphs = SplitParagraphs("Led team of 5 to ship X (+30% conv.)\n\nResponsible for various tasks")

func TestBasic_FiveChunkStream(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)

	assert.Equal(t, []types.Event{{Type: types.EventStart, Value: 2}}, e.Start())

	events := feedAll(e, chunks(basicAnswer, 5))
	require.Equal(t, []types.Event{
		{Type: types.EventWeakness, Value: types.Weakness{Content: "Responsible for various tasks", Reason: "vague, no metrics"}},
		{Type: types.EventScore, Value: 72},
	}, events)

	warnings, err := e.Finish()
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestBasicCharByChar(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)
	events := feedAll(e, chars(basicAnswer))

	require.Len(t, events, 2)
	assert.Equal(t, types.EventWeakness, events[0].Type)
	assert.Equal(t, types.EventScore, events[1].Type)
}

func TestBasicNoPartialValues(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)

	assert.Empty(t, e.Feed(`{"strength":[],"weakness":[{"paragraphIndex":1,"reason":"vague`))
	assert.Empty(t, e.Feed(`, no metrics"`))
	events := e.Feed(`}`)
	require.Len(t, events, 1)
	assert.Equal(t, types.Weakness{Content: "Responsible for various tasks", Reason: "vague, no metrics"}, events[0].Value)
}

func TestBasicWeaknessArrayFirst(t *testing.T) {
	doc := `{"weakness":[{"paragraphIndex":0,"reason":"w0"}],"strength":[{"paragraphIndex":1,"reason":"s1"}],"score":40}`
	e := NewBasic([]string{"zero", "one"})

	events := feedAll(e, chars(doc))
	require.Len(t, events, 2)
	assert.Equal(t, types.Weakness{Content: "zero", Reason: "w0"}, events[0].Value)
	assert.Equal(t, 40, events[1].Value)
}

func TestBasicDeduplicatesParagraphIndex(t *testing.T) {
	doc := `{"strength":[{"paragraphIndex":1,"reason":"good"}],"weakness":[{"paragraphIndex":1,"reason":"a"},{"paragraphIndex":1,"reason":"b"}]}`
	e := NewBasic([]string{"zero", "one"})

	events := feedAll(e, chunks(doc, 7))
	require.Len(t, events, 1)
	assert.Equal(t, types.Weakness{Content: "one", Reason: "a"}, events[0].Value)
}

func TestBasicSkipsUnknownParagraph(t *testing.T) {
	e := NewBasic([]string{"only"})
	events := e.Feed(`{"strength":[],"weakness":[{"paragraphIndex":9,"reason":"missing"},{"paragraphIndex":0,"reason":"ok"}]}`)

	require.Len(t, events, 1)
	assert.Equal(t, types.Weakness{Content: "only", Reason: "ok"}, events[0].Value)
}

func TestBasicEscapedReason(t *testing.T) {
	e := NewBasic([]string{"p"})
	events := feedAll(e, chars(`{"weakness":[{"paragraphIndex":0,"reason":"uses \"stuff\" and C:\\dir"}]}`))

	require.Len(t, events, 1)
	assert.Equal(t, `uses "stuff" and C:\dir`, events[0].Value.(types.Weakness).Reason)
}

func TestScoreEmittedOnChangeOnly(t *testing.T) {
	e := NewBasic([]string{"p"})

	var scores []any
	for _, d := range []string{`{"weakness":[],"score":7`, `2,`, `"note":"x"`, `,"score":72`, `,"score":80`, `}`} {
		for _, ev := range e.Feed(d) {
			if ev.Type == types.EventScore {
				scores = append(scores, ev.Value)
			}
		}
	}
	assert.Equal(t, []any{72, 80}, scores)
}

func TestScoreOutOfRangeIgnored(t *testing.T) {
	e := NewBasic(nil)
	assert.Empty(t, e.Feed(`{"weakness":[],"score":140}`))
}

func TestFinishMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "truncated", in: `{"weakness":[{"paragraphIndex":0`},
		{name: "no json", in: `I cannot help with that.`},
		{name: "broken", in: `{"weakness":[}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewBasic([]string{"p"})
			e.Feed(tt.in)
			_, err := e.Finish()
			require.Error(t, err)
		})
	}
}

func TestFinishAcceptsFence(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)
	events := feedAll(e, chunks("```json\n"+basicAnswer+"\n```", 9))
	require.Len(t, events, 2)

	_, err := e.Finish()
	assert.NoError(t, err)
}

func TestBasicPreambleWithStrayQuote(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)
	response := "Rated 5\" screen:\n" + `{"strength":[],"weakness":[{"paragraphIndex":1,"reason":"r"}],"score":60}`
	events := feedAll(e, chars(response))

	require.Len(t, events, 2)
	assert.Equal(t, types.Event{Type: types.EventWeakness, Value: types.Weakness{Content: "Responsible for various tasks", Reason: "r"}}, events[0])
	assert.Equal(t, types.Event{Type: types.EventScore, Value: 60}, events[1])

	_, err := e.Finish()
	assert.NoError(t, err)
}

func TestBasicNestedKeysIgnored(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []types.Event
	}{
		{
			name:     "score field inside an item",
			response: `{"strength":[],"weakness":[{"paragraphIndex":1,"reason":"r","score":3}],"score":72}`,
			want: []types.Event{
				{Type: types.EventWeakness, Value: types.Weakness{Content: "Responsible for various tasks", Reason: "r"}},
				{Type: types.EventScore, Value: 72},
			},
		},
		{
			name:     "section name inside an item",
			response: `{"strength":[{"paragraphIndex":0,"reason":"see","weakness":[]}],"weakness":[{"paragraphIndex":1,"reason":"vague"}],"score":50}`,
			want: []types.Event{
				{Type: types.EventWeakness, Value: types.Weakness{Content: "Responsible for various tasks", Reason: "vague"}},
				{Type: types.EventScore, Value: 50},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewBasic(basicAnswerParagraphs)
			assert.Equal(t, tt.want, feedAll(e, chars(tt.response)))
		})
	}
}

func TestBasicWholeValuedFloats(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)
	events := feedAll(e, chunks(`{"strength":[],"weakness":[{"paragraphIndex":1.0,"reason":"vague"}],"score":72.0}`, 6))

	require.Len(t, events, 2)
	assert.Equal(t, types.Weakness{Content: "Responsible for various tasks", Reason: "vague"}, events[0].Value)
	assert.Equal(t, 72, events[1].Value)

	_, err := e.Finish()
	assert.NoError(t, err)
}

func TestBasicFractionalScoreIgnored(t *testing.T) {
	e := NewBasic(basicAnswerParagraphs)
	events := feedAll(e, chars(`{"strength":[],"weakness":[],"score":72.5}`))
	assert.Empty(t, events)
}
