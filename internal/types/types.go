package types

// WeaknessItem is one entry of the strength or weakness arrays of a basic analysis.
type WeaknessItem struct {
	ParagraphIndex int    `json:"paragraphIndex" jsonschema:"minimum=0"`
	Reason         string `json:"reason"`
}

// BasicAnalysis is the document the model produces for a basic analysis.
type BasicAnalysis struct {
	Strength []WeaknessItem `json:"strength"`
	Weakness []WeaknessItem `json:"weakness"`
	Score    int            `json:"score" jsonschema:"minimum=0,maximum=100"`
}

// Weakness is the payload of a weakness event: the paragraph text and why it is weak.
type Weakness struct {
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// TimelineIssue describes a conflict, gap or overlap between periods on the resume.
type TimelineIssue struct {
	Type            string   `json:"type" jsonschema:"enum=conflict,enum=gap,enum=overlap"`
	Description     string   `json:"description"`
	Severity        string   `json:"severity" jsonschema:"enum=high,enum=medium,enum=low"`
	AffectedPeriods []string `json:"affectedPeriods"`
}

// SkillIssue contrasts a claimed skill with what the resume actually supports.
type SkillIssue struct {
	Skill      string `json:"skill"`
	Claimed    string `json:"claimed"`
	Reality    string `json:"reality"`
	Suggestion string `json:"suggestion"`
}

// MetricSuggestion points at an excerpt that would benefit from a quantified result.
type MetricSuggestion struct {
	Excerpt       string   `json:"excerpt"`
	Category      string   `json:"category" jsonschema:"enum=performance,enum=scale,enum=impact,enum=efficiency"`
	Questions     []string `json:"questions"`
	ExampleMetric string   `json:"exampleMetric"`
}

// JobMatchInsight scores the resume against a job description.
type JobMatchInsight struct {
	Score               int      `json:"score" jsonschema:"minimum=0,maximum=100"`
	Summary             string   `json:"summary"`
	MatchedRequirements []string `json:"matchedRequirements"`
	MissingRequirements []string `json:"missingRequirements"`
	Recommendations     []string `json:"recommendations"`
}

// DeepInsights is the document the model produces for a deep-insights analysis.
type DeepInsights struct {
	TimelineIssues    []TimelineIssue    `json:"timelineIssues"`
	SkillIssues       []SkillIssue       `json:"skillIssues"`
	MetricSuggestions []MetricSuggestion `json:"metricSuggestions"`
	JobMatch          *JobMatchInsight   `json:"jobMatch,omitempty"`
	OverallSuggestion string             `json:"overallSuggestion"`
}

// EventType names an outbound stream event.
type EventType string

const (
	EventStart            EventType = "start"
	EventThinking         EventType = "thinking"
	EventDelta            EventType = "delta"
	EventWeakness         EventType = "weakness"
	EventScore            EventType = "score"
	EventTimelineIssue    EventType = "timeline_issue"
	EventSkillIssue       EventType = "skill_issue"
	EventMetricSuggestion EventType = "metric_suggestion"
	EventJobMatch         EventType = "job_match"
	EventOverall          EventType = "overall"
	EventDone             EventType = "done"
	EventError            EventType = "error"
)

// Event is one frame of an analysis stream.
type Event struct {
	Type  EventType `json:"type"`
	Value any       `json:"value,omitempty"`
}

// AnalyzeRequest is the body of both analysis endpoints.
type AnalyzeRequest struct {
	Content         string `json:"content" validate:"required"`
	Model           string `json:"model,omitempty"`
	EncryptedAPIKey string `json:"encryptedApiKey,omitempty"`
	TargetRole      string `json:"targetRole,omitempty" validate:"max=200"`
	JobDescription  string `json:"jobDescription,omitempty"`
}

// FormatRequest asks for a hierarchy restructuring of a document.
type FormatRequest struct {
	Content         string `json:"content" validate:"required"`
	Model           string `json:"model,omitempty"`
	EncryptedAPIKey string `json:"encryptedApiKey,omitempty"`
}

// PromptRequest carries a free-form prompt.
type PromptRequest struct {
	Prompt          string `json:"prompt" validate:"required"`
	Model           string `json:"model,omitempty"`
	EncryptedAPIKey string `json:"encryptedApiKey,omitempty"`
}

// TagCandidatesRequest asks for alternative phrasings of a highlighted text.
type TagCandidatesRequest struct {
	Text            string `json:"text" validate:"required"`
	Reason          string `json:"reason,omitempty"`
	Context         string `json:"context,omitempty"`
	CandidateCount  int    `json:"candidateCount,omitempty" validate:"omitempty,min=1,max=10"`
	Model           string `json:"model,omitempty"`
	EncryptedAPIKey string `json:"encryptedApiKey,omitempty"`
}

// ValidateKeyRequest carries an encrypted provider key to check.
type ValidateKeyRequest struct {
	EncryptedAPIKey string `json:"encryptedApiKey" validate:"required"`
}

// CompleteResponse is the body returned by the completion endpoint.
type CompleteResponse struct {
	Result string `json:"result"`
}

// FormatResponse is the body returned by the hierarchy endpoint.
type FormatResponse struct {
	Content string `json:"content"`
}

// TagCandidates is both the model output and the endpoint response.
type TagCandidates struct {
	Candidates []string `json:"candidates"`
}

// ValidateKeyResponse reports whether a provider key was accepted.
type ValidateKeyResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// PublicKeyResponse publishes the key callers encrypt provider keys against.
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
	Algorithm string `json:"algorithm"`
	Hash      string `json:"hash"`
}

// FileMetadata describes an uploaded file.
type FileMetadata struct {
	Filename string   `json:"filename"`
	Size     int64    `json:"size"`
	Pages    int      `json:"pages,omitempty"`
	Sheets   []string `json:"sheets,omitempty"`
	Title    string   `json:"title,omitempty"`
}

// ParsedFile is the result of extracting text from an upload.
type ParsedFile struct {
	Content  string       `json:"content"`
	Type     string       `json:"type"`
	Metadata FileMetadata `json:"metadata"`
}
