package ai

import (
	"fmt"
	"strings"
	"sync"

	"resumelens/internal/config"
	"resumelens/internal/extract"
	"resumelens/internal/types"
)

// DefaultSystemPrompts holds the built-in system instructions per operation.
// A configured prompt file replaces the entry for its operation.
var DefaultSystemPrompts = map[string]string{
	config.OpAnalyze: `You are an expert resume reviewer with a strict commitment to honesty and accuracy.

- Judge every numbered paragraph of the resume on its own merits
- Flag paragraphs that are vague, unquantified or irrelevant to the target role as weaknesses
- Flag paragraphs with concrete, measurable impact as strengths
- Refer to paragraphs only by their number; never invent paragraphs
- Keep each reason to one short sentence`,

	config.OpDeepInsights: `You are an expert recruiter and integrity analyst. Your role is to:

- Detect conflicts, gaps and overlaps in the employment and education timeline
- Contrast claimed skills with what the described experience actually supports
- Point at achievements that would be stronger with a quantified result
- Score the resume against the job description when one is given

Quote excerpts exactly as they appear in the resume.`,

	config.OpFormat: `You are a professional resume editor. Restructure the given document into a clean markdown hierarchy:
one top-level heading for the candidate, second-level headings for sections, bullet points for achievements.
Keep every fact and every wording of the source. Do not add, remove or rephrase content.
Return only the markdown document.`,

	config.OpComplete: `You are a helpful assistant for resume writing. Answer concisely and never invent facts about the candidate.`,

	config.OpTagCandidates: `You are an expert resume writer. Rewrite the highlighted resume text into alternative phrasings that address the given reason.
Keep every fact of the original. Do not invent skills, numbers or employers.`,
}

const analyzeUserPrompt = `Analyze the resume below. Its paragraphs are numbered in square brackets.
%s
**Resume Paragraphs:**
-----
%s
-----

Respond with a single JSON object matching this JSON Schema. Put the "strength" array before the "weakness" array and the "score" last:
%s`

const deepInsightsUserPrompt = `Perform a deep review of the resume below.
%s
**Resume:**
-----
%s
-----

Respond with a single JSON object matching this JSON Schema. Omit "jobMatch" when no job description is given:
%s`

const formatUserPrompt = `Restructure this document:
-----
%s
-----`

const tagCandidatesUserPrompt = `Produce exactly %d alternative phrasings of the highlighted text.

**Highlighted Text:**
%s
%s
Respond with a single JSON object matching this JSON Schema:
%s`

var (
	basicSchema = sync.OnceValues(func() ([]byte, error) { return extract.SchemaFor(types.BasicAnalysis{}) })
	deepSchema  = sync.OnceValues(func() ([]byte, error) { return extract.SchemaFor(types.DeepInsights{}) })
	tagSchema   = sync.OnceValues(func() ([]byte, error) { return extract.SchemaFor(types.TagCandidates{}) })
)

// Prompts builds requests for every operation, preferring override files.
type Prompts struct {
	store *config.PromptStore
}

// NewPrompts returns a builder backed by store, which may be nil.
func NewPrompts(store *config.PromptStore) *Prompts {
	return &Prompts{store: store}
}

// System returns the system prompt of op.
func (p *Prompts) System(op string) string {
	if p != nil {
		if override := p.store.Get(op); override != "" {
			return override
		}
	}
	return DefaultSystemPrompts[op]
}

// Analyze builds the basic analysis request over numbered paragraphs.
func (p *Prompts) Analyze(paragraphs []string, targetRole, jobDescription string) (Request, error) {
	schema, err := basicSchema()
	if err != nil {
		return Request{}, fmt.Errorf("failed to build analysis schema: %w", err)
	}

	var numbered strings.Builder
	for i, para := range paragraphs {
		if i > 0 {
			numbered.WriteString("\n")
		}
		fmt.Fprintf(&numbered, "[%d] %s", i, para)
	}

	return Request{
		System: p.System(config.OpAnalyze),
		User:   fmt.Sprintf(analyzeUserPrompt, targetSection(targetRole, jobDescription), numbered.String(), schema),
		JSON:   true,
	}, nil
}

// DeepInsights builds the deep insights request over the whole document.
func (p *Prompts) DeepInsights(content, targetRole, jobDescription string) (Request, error) {
	schema, err := deepSchema()
	if err != nil {
		return Request{}, fmt.Errorf("failed to build deep insights schema: %w", err)
	}

	return Request{
		System: p.System(config.OpDeepInsights),
		User:   fmt.Sprintf(deepInsightsUserPrompt, targetSection(targetRole, jobDescription), content, schema),
		JSON:   true,
	}, nil
}

// Format builds the hierarchy restructuring request.
func (p *Prompts) Format(content string) Request {
	return Request{
		System: p.System(config.OpFormat),
		User:   fmt.Sprintf(formatUserPrompt, content),
	}
}

// Complete wraps a free-form prompt, appending attached file text if any.
func (p *Prompts) Complete(prompt, attachment string) Request {
	user := prompt
	if attachment != "" {
		user = fmt.Sprintf("%s\n\n**Attached Document:**\n-----\n%s\n-----", prompt, attachment)
	}
	return Request{
		System: p.System(config.OpComplete),
		User:   user,
	}
}

// TagCandidates builds the alternative phrasing request.
func (p *Prompts) TagCandidates(text, reason, context string, count int) (Request, error) {
	schema, err := tagSchema()
	if err != nil {
		return Request{}, fmt.Errorf("failed to build tag candidates schema: %w", err)
	}

	var extra strings.Builder
	if reason != "" {
		fmt.Fprintf(&extra, "\n**Reason For Rewriting:**\n%s\n", reason)
	}
	if context != "" {
		fmt.Fprintf(&extra, "\n**Surrounding Context:**\n%s\n", context)
	}

	return Request{
		System: p.System(config.OpTagCandidates),
		User:   fmt.Sprintf(tagCandidatesUserPrompt, count, text, extra.String(), schema),
		JSON:   true,
	}, nil
}

func targetSection(targetRole, jobDescription string) string {
	var b strings.Builder
	if targetRole != "" {
		fmt.Fprintf(&b, "\n**Target Role:** %s\n", targetRole)
	}
	if jobDescription != "" {
		fmt.Fprintf(&b, "\n**Job Description:**\n-----\n%s\n-----\n", jobDescription)
	}
	return b.String()
}
