package formatters

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"resumelens/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "Report", &ReportTextFormatter{})
	registry.RegisterFormatter("markdown", "Report", &ReportMarkdownFormatter{})
	registry.RegisterFormatter("text", "ParsedFile", &ParsedFileFormatter{})
	registry.RegisterFormatter("markdown", "ParsedFile", &ParsedFileFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case Report, *Report:
		return "Report"
	case types.ParsedFile, *types.ParsedFile:
		return "ParsedFile"
	default:
		return "any"
	}
}

func asReport(data any) (Report, error) {
	switch r := data.(type) {
	case Report:
		return r, nil
	case *Report:
		return *r, nil
	}
	return Report{}, fmt.Errorf("expected Report, got %T", data)
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

// ReportTextFormatter renders a report for a terminal
type ReportTextFormatter struct{}

func (rtf *ReportTextFormatter) Format(data any) (string, error) {
	r, err := asReport(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	if r.Formatted != "" {
		output.WriteString(r.Formatted)
		output.WriteString("\n")
	}

	if r.Kind == "basic" {
		output.WriteString("=== RESUME ANALYSIS ===\n")
		fmt.Fprintf(&output, "Paragraphs: %d\n", r.Paragraphs)
		if r.Score != nil {
			fmt.Fprintf(&output, "Score: %d/100\n", *r.Score)
		}
		output.WriteString("\n")
		if len(r.Weaknesses) > 0 {
			output.WriteString("Weaknesses:\n")
			for i, w := range r.Weaknesses {
				fmt.Fprintf(&output, "%d. %s\n   Reason: %s\n", i+1, w.Content, w.Reason)
			}
			output.WriteString("\n")
		}
	}

	if len(r.TimelineIssues) > 0 {
		output.WriteString("=== TIMELINE ISSUES ===\n")
		for i, ti := range r.TimelineIssues {
			fmt.Fprintf(&output, "%d. [%s/%s] %s\n", i+1, strings.ToUpper(ti.Severity), ti.Type, ti.Description)
			if len(ti.AffectedPeriods) > 0 {
				fmt.Fprintf(&output, "   Periods: %s\n", strings.Join(ti.AffectedPeriods, ", "))
			}
		}
		output.WriteString("\n")
	}

	if len(r.SkillIssues) > 0 {
		output.WriteString("=== SKILL ISSUES ===\n")
		for i, si := range r.SkillIssues {
			fmt.Fprintf(&output, "%d. %s\n   Claimed: %s\n   Reality: %s\n   Suggestion: %s\n", i+1, si.Skill, si.Claimed, si.Reality, si.Suggestion)
		}
		output.WriteString("\n")
	}

	if len(r.MetricSuggestions) > 0 {
		output.WriteString("=== METRIC SUGGESTIONS ===\n")
		for i, ms := range r.MetricSuggestions {
			fmt.Fprintf(&output, "%d. [%s] %q\n   Example: %s\n", i+1, ms.Category, ms.Excerpt, ms.ExampleMetric)
			for _, q := range ms.Questions {
				fmt.Fprintf(&output, "   - %s\n", q)
			}
		}
		output.WriteString("\n")
	}

	if r.JobMatch != nil {
		output.WriteString("=== JOB MATCH ===\n")
		fmt.Fprintf(&output, "Score: %d/100\n%s\n", r.JobMatch.Score, r.JobMatch.Summary)
		writeTextList(&output, "Matched", r.JobMatch.MatchedRequirements)
		writeTextList(&output, "Missing", r.JobMatch.MissingRequirements)
		writeTextList(&output, "Recommendations", r.JobMatch.Recommendations)
		output.WriteString("\n")
	}

	if r.OverallSuggestion != "" {
		output.WriteString("=== OVERALL ===\n")
		output.WriteString(r.OverallSuggestion)
		output.WriteString("\n\n")
	}

	if r.Error != "" {
		fmt.Fprintf(&output, "Analysis incomplete: %s\n", r.Error)
	}

	return strings.TrimRight(output.String(), "\n") + "\n", nil
}

func (rtf *ReportTextFormatter) SupportedType() string {
	return "Report"
}

func writeTextList(output *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(output, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(output, "  - %s\n", item)
	}
}

// ReportMarkdownFormatter renders a report as markdown
type ReportMarkdownFormatter struct{}

func (rmf *ReportMarkdownFormatter) Format(data any) (string, error) {
	r, err := asReport(data)
	if err != nil {
		return "", err
	}

	var output strings.Builder

	if r.Formatted != "" {
		output.WriteString(r.Formatted)
		output.WriteString("\n")
		return output.String(), nil
	}

	if r.Kind == "basic" {
		output.WriteString("# Resume Analysis\n\n")
		if r.Score != nil {
			fmt.Fprintf(&output, "**Score:** %d/100\n\n", *r.Score)
		}
		if len(r.Weaknesses) > 0 {
			output.WriteString("## Weaknesses\n\n")
			for _, w := range r.Weaknesses {
				fmt.Fprintf(&output, "> %s\n\n%s\n\n", w.Content, w.Reason)
			}
		}
	} else {
		output.WriteString("# Deep Insights\n\n")
	}

	if len(r.TimelineIssues) > 0 {
		output.WriteString("## Timeline Issues\n\n")
		output.WriteString("| Type | Severity | Description | Periods |\n|---|---|---|---|\n")
		for _, ti := range r.TimelineIssues {
			fmt.Fprintf(&output, "| %s | %s | %s | %s |\n", ti.Type, ti.Severity, escapeCell(ti.Description), escapeCell(strings.Join(ti.AffectedPeriods, ", ")))
		}
		output.WriteString("\n")
	}

	if len(r.SkillIssues) > 0 {
		output.WriteString("## Skill Issues\n\n")
		for _, si := range r.SkillIssues {
			fmt.Fprintf(&output, "### %s\n\n- **Claimed:** %s\n- **Reality:** %s\n- **Suggestion:** %s\n\n", si.Skill, si.Claimed, si.Reality, si.Suggestion)
		}
	}

	if len(r.MetricSuggestions) > 0 {
		output.WriteString("## Metric Suggestions\n\n")
		for _, ms := range r.MetricSuggestions {
			fmt.Fprintf(&output, "> %s\n\n*%s*, e.g. %s\n\n", ms.Excerpt, ms.Category, ms.ExampleMetric)
			for _, q := range ms.Questions {
				fmt.Fprintf(&output, "- %s\n", q)
			}
			output.WriteString("\n")
		}
	}

	if r.JobMatch != nil {
		output.WriteString("## Job Match\n\n")
		fmt.Fprintf(&output, "**Score:** %d/100\n\n%s\n\n", r.JobMatch.Score, r.JobMatch.Summary)
		writeMarkdownList(&output, "Matched Requirements", r.JobMatch.MatchedRequirements)
		writeMarkdownList(&output, "Missing Requirements", r.JobMatch.MissingRequirements)
		writeMarkdownList(&output, "Recommendations", r.JobMatch.Recommendations)
	}

	if r.OverallSuggestion != "" {
		output.WriteString("## Overall\n\n")
		output.WriteString(r.OverallSuggestion)
		output.WriteString("\n\n")
	}

	if r.Error != "" {
		fmt.Fprintf(&output, "> **Analysis incomplete:** %s\n\n", r.Error)
	}

	return strings.TrimRight(output.String(), "\n") + "\n", nil
}

func (rmf *ReportMarkdownFormatter) SupportedType() string {
	return "Report"
}

func writeMarkdownList(output *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(output, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(output, "- %s\n", item)
	}
	output.WriteString("\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// ParsedFileFormatter prints the extracted text of a file as is
type ParsedFileFormatter struct{}

func (pf *ParsedFileFormatter) Format(data any) (string, error) {
	switch f := data.(type) {
	case types.ParsedFile:
		return ensureNewline(f.Content), nil
	case *types.ParsedFile:
		return ensureNewline(f.Content), nil
	}
	return "", fmt.Errorf("expected ParsedFile, got %T", data)
}

func (pf *ParsedFileFormatter) SupportedType() string {
	return "ParsedFile"
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
