package extract

import "strings"

// SplitParagraphs splits a document on line boundaries, trims each segment
// and drops empty ones. The result index is the paragraph index the model
// refers to.
func SplitParagraphs(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return paragraphs
}
