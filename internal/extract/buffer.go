package extract

import "strings"

// Buffer accumulates the raw text of one model response. It only grows:
// closed values found at an offset on one pass stay identical on every later pass.
type Buffer struct {
	b strings.Builder
}

// Append adds a delta verbatim.
func (b *Buffer) Append(delta string) {
	b.b.WriteString(delta)
}

func (b *Buffer) String() string {
	return b.b.String()
}

func (b *Buffer) Len() int {
	return b.b.Len()
}
