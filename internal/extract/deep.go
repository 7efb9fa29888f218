package extract

import "resumelens/internal/types"

var (
	timelineIssue = Shape{
		Event: types.EventTimelineIssue,
		Fields: []Field{
			{Name: "type", Kind: String, OneOf: []string{"conflict", "gap", "overlap"}},
			{Name: "description", Kind: String},
			{Name: "severity", Kind: String, OneOf: []string{"high", "medium", "low"}},
			{Name: "affectedPeriods", Kind: StringArray},
		},
		Resolve: Hashed[types.TimelineIssue](),
		Ordinal: true,
	}

	skillIssue = Shape{
		Event: types.EventSkillIssue,
		Fields: []Field{
			{Name: "skill", Kind: String},
			{Name: "claimed", Kind: String},
			{Name: "reality", Kind: String},
			{Name: "suggestion", Kind: String},
		},
		Resolve: Hashed[types.SkillIssue](),
		Ordinal: true,
	}

	metricSuggestion = Shape{
		Event: types.EventMetricSuggestion,
		Fields: []Field{
			{Name: "excerpt", Kind: String},
			{Name: "category", Kind: String, OneOf: []string{"performance", "scale", "impact", "efficiency"}},
			{Name: "questions", Kind: StringArray},
			{Name: "exampleMetric", Kind: String},
		},
		Resolve: Hashed[types.MetricSuggestion](),
		Ordinal: true,
	}

	jobMatch = Shape{
		Event: types.EventJobMatch,
		Fields: []Field{
			{Name: "score", Kind: Integer, Max: 100},
			{Name: "summary", Kind: String},
			{Name: "matchedRequirements", Kind: StringArray},
			{Name: "missingRequirements", Kind: StringArray},
			{Name: "recommendations", Kind: StringArray},
		},
	}
)

// DeepSchema extracts timeline, skill and metric findings, the job match
// block and the overall suggestion.
func DeepSchema() *Schema {
	return &Schema{
		Name:   "deep",
		Shapes: []Shape{timelineIssue, skillIssue, metricSuggestion},
		Singles: []Single{
			{Event: types.EventJobMatch, Key: "jobMatch", Mode: Once, Decode: ObjectOf[types.JobMatchInsight](jobMatch)},
			{Event: types.EventOverall, Key: "overallSuggestion", Mode: Once, Decode: NonEmptyString},
		},
		Target: func() any { return &types.DeepInsights{} },
	}
}

// NewDeep returns the engine for a deep-insights analysis.
func NewDeep(opts ...Option) *Engine {
	return NewEngine(DeepSchema(), opts...)
}
