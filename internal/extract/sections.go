package extract

// Sections classifies array items of a shape that appears under several
// sibling arrays, such as strength and weakness, by where the arrays open.
type Sections struct {
	names []string
}

func NewSections(names ...string) Sections {
	return Sections{names: names}
}

// Classify returns the section whose array opened most recently before offset.
// An item outside every started array, or past the end of a closed one, is not
// classifiable yet. Array order in the document is not assumed.
func (s Sections) Classify(doc *Document, offset int) (string, bool) {
	best, bestStart := "", -1
	for _, name := range s.names {
		start := doc.ArrayStart(name)
		if start < 0 || start >= offset || start < bestStart {
			continue
		}
		best, bestStart = name, start
	}
	if bestStart < 0 {
		return "", false
	}
	if end, closed := doc.End(bestStart); closed && offset >= end {
		return "", false
	}
	return best, true
}
