package extract

import (
	"encoding/json"
	"testing"

	"resumelens/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deepAnswer = `{
  "timelineIssues": [
    {"type": "gap", "description": "Unexplained gap", "severity": "medium", "affectedPeriods": ["2019-01", "2019-09"]},
    {"type": "overlap", "description": "Two full-time roles", "severity": "high", "affectedPeriods": ["2020"]}
  ],
  "skillIssues": [
    {"skill": "Kubernetes", "claimed": "expert", "reality": "one project", "suggestion": "say \"familiar\""}
  ],
  "metricSuggestions": [],
  "jobMatch": {"score": 64, "summary": "Partial fit", "matchedRequirements": ["Go"], "missingRequirements": ["AWS"], "recommendations": ["Mention cloud work"]},
  "overallSuggestion": "Quantify outcomes."
}`

func TestDeep_MixedFindingsInDocumentOrder(t *testing.T) {
	e := NewDeep()
	events := feedAll(e, chunks(deepAnswer, 11))

	var kinds []types.EventType
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	assert.Equal(t, []types.EventType{
		types.EventTimelineIssue,
		types.EventTimelineIssue,
		types.EventSkillIssue,
		types.EventJobMatch,
		types.EventOverall,
	}, kinds)

	assert.Equal(t, types.TimelineIssue{
		Type: "gap", Description: "Unexplained gap", Severity: "medium", AffectedPeriods: []string{"2019-01", "2019-09"},
	}, events[0].Value)
	assert.Equal(t, `say "familiar"`, events[2].Value.(types.SkillIssue).Suggestion)
	assert.Equal(t, 64, events[3].Value.(types.JobMatchInsight).Score)
	assert.Equal(t, "Quantify outcomes.", events[4].Value)

	_, err := e.Finish()
	require.NoError(t, err)
}

func TestDeepEventualCompleteness(t *testing.T) {
	e := NewDeep()
	events := feedAll(e, chars(deepAnswer))

	var want types.DeepInsights
	require.NoError(t, json.Unmarshal([]byte(deepAnswer), &want))

	var got types.DeepInsights
	for _, ev := range events {
		switch v := ev.Value.(type) {
		case types.TimelineIssue:
			got.TimelineIssues = append(got.TimelineIssues, v)
		case types.SkillIssue:
			got.SkillIssues = append(got.SkillIssues, v)
		case types.MetricSuggestion:
			got.MetricSuggestions = append(got.MetricSuggestions, v)
		case types.JobMatchInsight:
			got.JobMatch = &v
		case string:
			got.OverallSuggestion = v
		}
	}
	want.MetricSuggestions = nil
	assert.Equal(t, want, got)
}

func TestDeepArraySplitAcrossChunks(t *testing.T) {
	e := NewDeep()

	assert.Empty(t, e.Feed(`{"timelineIssues":[{"type":"conflict","description":"d","severity":"low","affectedPeriods":["2018`))
	assert.Empty(t, e.Feed(`","2019"`))
	assert.Empty(t, e.Feed(`]`), "object not closed yet")
	events := e.Feed(`}`)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"2018", "2019"}, events[0].Value.(types.TimelineIssue).AffectedPeriods)
}

func TestDeepRejectsInvalidEnum(t *testing.T) {
	e := NewDeep()
	events := e.Feed(`{"timelineIssues":[{"type":"typo","description":"d","severity":"low","affectedPeriods":[]}],"metricSuggestions":[{"excerpt":"x","category":"scale","questions":["How many?"],"exampleMetric":"10k users"}]}`)

	require.Len(t, events, 1)
	assert.Equal(t, types.EventMetricSuggestion, events[0].Type)
}

func TestDeepDuplicateFindingsBothEmitted(t *testing.T) {
	item := `{"skill":"Go","claimed":"a","reality":"b","suggestion":"c"}`
	e := NewDeep()

	events := feedAll(e, chars(`{"skillIssues":[`+item+`,`+item+`]}`))
	assert.Len(t, events, 2)

	// a rescan of the same buffer admits nothing new
	assert.Empty(t, e.scan())
}

func TestDeepJobMatchWaitsForAllFields(t *testing.T) {
	e := NewDeep()
	assert.Empty(t, e.Feed(`{"jobMatch":{"score":50,"summary":"s"},`))
	assert.Empty(t, e.Feed(`"overallSuggestion":""}`))
}

func TestDeepAtMostOnceUnderRescan(t *testing.T) {
	e := NewDeep()
	seen := make(map[string]int)
	for _, d := range chunks(deepAnswer, 40) {
		for _, ev := range e.Feed(d) {
			raw, err := json.Marshal(ev)
			require.NoError(t, err)
			seen[string(raw)]++
		}
	}
	for raw, n := range seen {
		assert.Equal(t, 1, n, raw)
	}
	assert.Len(t, seen, 5)
}
