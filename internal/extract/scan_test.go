package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRecordsOnlyClosedValues(t *testing.T) {
	doc := Scan(`{"a":{"b":1},"c":[1,2],"d":"unterm`)

	require.Len(t, doc.Objects(), 1)
	raw, ok := doc.Raw(doc.Objects()[0])
	require.True(t, ok)
	assert.Equal(t, `{"b":1}`, raw)

	start := doc.ArrayStart("c")
	require.GreaterOrEqual(t, start, 0)
	raw, ok = doc.Raw(start)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, raw)

	keys := doc.RootKeys("d")
	require.Len(t, keys, 1)
	_, ok = doc.Value(keys[0])
	assert.False(t, ok, "unterminated string must not be readable")
}

func TestScanHandlesEscapes(t *testing.T) {
	doc := Scan(`{"reason":"said \"}\" then \\","x":1}`)

	keys := doc.RootKeys("reason")
	require.Len(t, keys, 1)
	raw, ok := doc.Value(keys[0])
	require.True(t, ok)
	assert.Equal(t, `"said \"}\" then \\"`, raw)
	assert.Len(t, doc.Objects(), 1)
}

func TestScanIgnoresBracesInsideStrings(t *testing.T) {
	doc := Scan(`{"a":"{[","b":[`)
	assert.Empty(t, doc.Objects())
	assert.Equal(t, 14, doc.ArrayStart("b"))
}

func TestValueNeedsDelimiterAfterNumber(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		want  string
		ready bool
	}{
		{name: "digit at end of buffer", src: `{"score":7`, ready: false},
		{name: "closing brace", src: `{"score":72}`, want: "72", ready: true},
		{name: "comma", src: `{"score":72,`, want: "72", ready: true},
		{name: "whitespace", src: "{\"score\": 72\n", want: "72", ready: true},
		{name: "value not started", src: `{"score":`, ready: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Scan(tt.src)
			keys := doc.RootKeys("score")
			require.Len(t, keys, 1)
			got, ok := doc.Value(keys[0])
			assert.Equal(t, tt.ready, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanSkipsFenceAndKeyDepth(t *testing.T) {
	doc := Scan("```json\n{\"outer\":{\"inner\":1}}\n```")
	outer := doc.RootKeys("outer")
	inner := doc.keysAt("inner", 0)
	require.Len(t, outer, 1)
	require.Len(t, inner, 1)
	assert.Equal(t, 1, outer[0].Depth)
	assert.Equal(t, 2, inner[0].Depth)
}

func TestScanStartsAtFirstObject(t *testing.T) {
	src := "He said \"hi:\n" + `{"a":"x"}`
	doc := Scan(src)

	keys := doc.RootKeys("a")
	require.Len(t, keys, 1)
	assert.Equal(t, strings.Index(src, `"a"`), keys[0].Offset, "offsets stay relative to the whole buffer")
	raw, ok := doc.Value(keys[0])
	require.True(t, ok)
	assert.Equal(t, `"x"`, raw)

	assert.Empty(t, Scan(`no json "here`).Objects())
}

func TestRootKeysAndArrayStartSkipNested(t *testing.T) {
	doc := Scan(`{"items":[{"score":3,"list":[1]}],"list":[2],"score":72}`)

	keys := doc.RootKeys("score")
	require.Len(t, keys, 1)
	raw, ok := doc.Value(keys[0])
	require.True(t, ok)
	assert.Equal(t, "72", raw)

	raw, ok = doc.Raw(doc.ArrayStart("list"))
	require.True(t, ok)
	assert.Equal(t, "[2]", raw)
}

func TestWholeNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"72", 72, true},
		{"72.0", 72, true},
		{"7.2e1", 72, true},
		{"-1", -1, true},
		{"72.5", 0, false},
		{`"72"`, 0, false},
		{"true", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := wholeNumber([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
