package formatters

import (
	"strings"

	"resumelens/internal/types"
)

// Report gathers the findings of one analysis stream from its events.
type Report struct {
	Kind              string                   `json:"kind"`
	Paragraphs        int                      `json:"paragraphs,omitempty"`
	Weaknesses        []types.Weakness         `json:"weaknesses,omitempty"`
	Score             *int                     `json:"score,omitempty"`
	TimelineIssues    []types.TimelineIssue    `json:"timelineIssues,omitempty"`
	SkillIssues       []types.SkillIssue       `json:"skillIssues,omitempty"`
	MetricSuggestions []types.MetricSuggestion `json:"metricSuggestions,omitempty"`
	JobMatch          *types.JobMatchInsight   `json:"jobMatch,omitempty"`
	OverallSuggestion string                   `json:"overallSuggestion,omitempty"`
	Formatted         string                   `json:"formatted,omitempty"`
	Thinking          string                   `json:"thinking,omitempty"`
	Complete          bool                     `json:"complete"`
	Error             string                   `json:"error,omitempty"`
}

// NewReport replays events into a report. A later score replaces an
// earlier one.
func NewReport(kind string, events []types.Event) Report {
	r := Report{Kind: kind}
	var thinking, formatted strings.Builder

	for _, ev := range events {
		switch ev.Type {
		case types.EventStart:
			if n, ok := ev.Value.(int); ok {
				r.Paragraphs = n
			}
		case types.EventThinking:
			if s, ok := ev.Value.(string); ok {
				thinking.WriteString(s)
			}
		case types.EventDelta:
			if s, ok := ev.Value.(string); ok {
				formatted.WriteString(s)
			}
		case types.EventWeakness:
			if w, ok := ev.Value.(types.Weakness); ok {
				r.Weaknesses = append(r.Weaknesses, w)
			}
		case types.EventScore:
			if n, ok := ev.Value.(int); ok {
				r.Score = &n
			}
		case types.EventTimelineIssue:
			if v, ok := ev.Value.(types.TimelineIssue); ok {
				r.TimelineIssues = append(r.TimelineIssues, v)
			}
		case types.EventSkillIssue:
			if v, ok := ev.Value.(types.SkillIssue); ok {
				r.SkillIssues = append(r.SkillIssues, v)
			}
		case types.EventMetricSuggestion:
			if v, ok := ev.Value.(types.MetricSuggestion); ok {
				r.MetricSuggestions = append(r.MetricSuggestions, v)
			}
		case types.EventJobMatch:
			if v, ok := ev.Value.(types.JobMatchInsight); ok {
				r.JobMatch = &v
			}
		case types.EventOverall:
			if s, ok := ev.Value.(string); ok {
				r.OverallSuggestion = s
			}
		case types.EventDone:
			r.Complete = true
		case types.EventError:
			if s, ok := ev.Value.(string); ok {
				r.Error = s
			}
		}
	}

	r.Thinking = thinking.String()
	r.Formatted = formatted.String()
	return r
}
