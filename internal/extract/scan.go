package extract

import (
	"encoding/json"
	"sort"
	"strings"
)

// Key is an object key found in the buffer.
type Key struct {
	Name string
	// Offset of the key's opening quote.
	Offset int
	// Depth is the number of open containers around the key, 1 for root object keys.
	Depth int
	// ValueStart is the offset of the value's first byte, or -1 if it has not arrived.
	ValueStart int
}

// Document is the result of one lexical pass over a partial JSON text.
// Only terminated strings and balanced containers are recorded, so nothing
// read through a Document can come from an unterminated fragment.
type Document struct {
	src     string
	closed  map[int]int
	keys    []Key
	objects []int
}

// Scan tokenizes src left to right, tracking string escapes and container depth.
// Tokenizing starts at the first '{', the same place Payload cuts the final
// document from, so a preamble such as a markdown fence or prose with a stray
// quote cannot shift string boundaries. Offsets stay relative to src.
func Scan(src string) *Document {
	d := &Document{src: src, closed: make(map[int]int)}
	first := strings.IndexByte(src, '{')
	if first < 0 {
		return d
	}
	var stack []int
	n := len(src)

loop:
	for i := first; i < n; i++ {
		switch c := src[i]; c {
		case '"':
			end := stringEnd(src, i)
			if end < 0 {
				break loop
			}
			d.closed[i] = end
			if j := skipSpace(src, end); j < n && src[j] == ':' {
				if name, ok := decodeKey(src[i:end]); ok {
					vs := skipSpace(src, j+1)
					if vs >= n {
						vs = -1
					}
					d.keys = append(d.keys, Key{Name: name, Offset: i, Depth: len(stack), ValueStart: vs})
				}
			}
			i = end - 1
		case '{', '[':
			stack = append(stack, i)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !pairs(src[start], c) {
				continue
			}
			d.closed[start] = i + 1
			if c == '}' {
				d.objects = append(d.objects, start)
			}
		}
	}

	sort.Ints(d.objects)
	return d
}

// Objects returns the start offsets of every closed object, in document order.
func (d *Document) Objects() []int {
	return d.objects
}

// Raw returns the closed string, object or array starting at offset.
func (d *Document) Raw(offset int) (string, bool) {
	end, ok := d.closed[offset]
	if !ok {
		return "", false
	}
	return d.src[offset:end], true
}

// End returns the end offset (exclusive) of the closed value starting at offset.
func (d *Document) End(offset int) (int, bool) {
	end, ok := d.closed[offset]
	return end, ok
}

// RootKeys returns the keys with the given name that belong to a top-level
// object, so a same-named field of a nested item is never mistaken for them.
func (d *Document) RootKeys(name string) []Key {
	return d.keysAt(name, 1)
}

// keysAt returns the keys named name in document order. Depth zero means any depth.
func (d *Document) keysAt(name string, depth int) []Key {
	var out []Key
	for _, k := range d.keys {
		if k.Name == name && (depth == 0 || k.Depth == depth) {
			out = append(out, k)
		}
	}
	return out
}

// Value returns the complete raw value of k. Numbers and literals count as
// complete only once a delimiter follows them, so a streamed "7" is not
// mistaken for the final "72".
func (d *Document) Value(k Key) (string, bool) {
	vs := k.ValueStart
	if vs < 0 {
		return "", false
	}
	switch d.src[vs] {
	case '"', '{', '[':
		return d.Raw(vs)
	}
	j := vs
	for j < len(d.src) && !isDelimiter(d.src[j]) {
		j++
	}
	if j >= len(d.src) || j == vs {
		return "", false
	}
	return d.src[vs:j], true
}

// ArrayStart returns the offset of the opening bracket of the first array
// valued root key with the given name, or -1 if it has not started yet.
func (d *Document) ArrayStart(name string) int {
	for _, k := range d.RootKeys(name) {
		if k.ValueStart >= 0 && d.src[k.ValueStart] == '[' {
			return k.ValueStart
		}
	}
	return -1
}

func stringEnd(src string, start int) int {
	for j := start + 1; j < len(src); {
		switch src[j] {
		case '\\':
			j += 2
		case '"':
			return j + 1
		default:
			j++
		}
	}
	return -1
}

func decodeKey(quoted string) (string, bool) {
	if !strings.ContainsRune(quoted, '\\') {
		return quoted[1 : len(quoted)-1], true
	}
	var name string
	if err := json.Unmarshal([]byte(quoted), &name); err != nil {
		return "", false
	}
	return name, true
}

func skipSpace(src string, i int) int {
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDelimiter(c byte) bool {
	return c == ',' || c == '}' || c == ']' || isSpace(c)
}

func pairs(open, close byte) bool {
	return (open == '{' && close == '}') || (open == '[' && close == ']')
}
