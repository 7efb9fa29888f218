package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"resumelens/internal/types"
)

// Kind is the value grammar of a shape field.
type Kind int

const (
	String Kind = iota
	Integer
	StringArray
)

// Field declares one required field of a shape.
type Field struct {
	Name string
	Kind Kind
	// OneOf restricts a String field to an enumeration.
	OneOf []string
	// Min and Max bound an Integer field. Max of zero means unbounded.
	Min, Max int
}

func (f Field) decode(raw json.RawMessage) (any, bool) {
	switch f.Kind {
	case String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		if len(f.OneOf) > 0 && !slices.Contains(f.OneOf, s) {
			return nil, false
		}
		return s, true
	case Integer:
		n, ok := wholeNumber(raw)
		if !ok {
			return nil, false
		}
		if n < f.Min || (f.Max != 0 && n > f.Max) {
			return nil, false
		}
		return n, true
	case StringArray:
		var a []string
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, false
		}
		if a == nil {
			a = []string{}
		}
		return a, true
	}
	return nil, false
}

// wholeNumber reads a JSON number with no fractional part, so 72 and 72.0
// are the same value. Quoted numbers are not numbers.
func wholeNumber(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, false
	}
	if n, err := num.Int64(); err == nil {
		return int(n), true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int(f), true
}

// decodeLenient unmarshals raw into v. When that fails it retries with
// whole-valued floats such as 72.0 rewritten as integers.
func decodeLenient(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if dec.Decode(&tree) != nil {
		return err
	}
	normalized, merr := json.Marshal(integralNumbers(tree))
	if merr != nil {
		return err
	}
	if json.Unmarshal(normalized, v) != nil {
		return err
	}
	return nil
}

func integralNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = integralNumbers(x)
		}
	case []any:
		for i, x := range t {
			t[i] = integralNumbers(x)
		}
	case json.Number:
		if n, ok := wholeNumber(json.RawMessage(t)); ok {
			return json.Number(strconv.Itoa(n))
		}
	}
	return v
}

// Candidate is a closed object of the buffer that carries every field of a shape.
type Candidate struct {
	Offset int
	Raw    string
	Values map[string]any
}

// Int returns an Integer field value.
func (c Candidate) Int(name string) int {
	n, _ := c.Values[name].(int)
	return n
}

// Str returns a String field value.
func (c Candidate) Str(name string) string {
	s, _ := c.Values[name].(string)
	return s
}

// Resolver turns a candidate into the value to emit and its identity.
// ok=false defers the candidate to a later pass. A nil value with ok=true
// marks the identity as handled without emitting anything.
type Resolver func(doc *Document, c Candidate) (value any, identity string, ok bool)

// Shape declares a repeated finding: the event it produces and the fields
// that make an object of the buffer an instance of it.
type Shape struct {
	Event   types.EventType
	Fields  []Field
	Resolve Resolver
	// Ordinal appends the occurrence number to the identity so equal
	// findings that appear twice are both emitted.
	Ordinal bool
}

// match reports whether the closed object raw is an instance of s.
func (s Shape) match(raw string) (Candidate, bool) {
	for _, f := range s.Fields {
		if !strings.Contains(raw, `"`+f.Name+`"`) {
			return Candidate{}, false
		}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Candidate{}, false
	}

	values := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		field, ok := obj[f.Name]
		if !ok {
			return Candidate{}, false
		}
		v, ok := f.decode(field)
		if !ok {
			return Candidate{}, false
		}
		values[f.Name] = v
	}
	return Candidate{Raw: raw, Values: values}, true
}

// Hashed resolves candidates into T and identifies them by a hash of their fields.
func Hashed[T any]() Resolver {
	return func(_ *Document, c Candidate) (any, string, bool) {
		var v T
		if err := decodeLenient([]byte(c.Raw), &v); err != nil {
			return nil, "", false
		}
		return v, ContentHash(c.Values), true
	}
}

// ContentHash is the identity of a finding: sha256 over its canonical JSON.
func ContentHash(values map[string]any) string {
	// map keys are sorted by encoding/json
	canonical, _ := json.Marshal(values)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8])
}

// Mode controls when a single-instance value is emitted.
type Mode int

const (
	// Once emits the first complete value and ignores later ones.
	Once Mode = iota
	// OnChange emits the latest complete value whenever it differs from the last emitted one.
	OnChange
)

// Single declares a keyed single-instance value such as a score.
type Single struct {
	Event  types.EventType
	Key    string
	Mode   Mode
	Decode func(raw string) (any, bool)
}

// IntegerIn decodes a bounded integer.
func IntegerIn(lo, hi int) func(string) (any, bool) {
	f := Field{Kind: Integer, Min: lo, Max: hi}
	return func(raw string) (any, bool) {
		return f.decode(json.RawMessage(raw))
	}
}

// NonEmptyString decodes a string value that carries text.
func NonEmptyString(raw string) (any, bool) {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return s, true
}

// ObjectOf decodes an object carrying every field of shape into T.
func ObjectOf[T any](shape Shape) func(string) (any, bool) {
	return func(raw string) (any, bool) {
		if _, ok := shape.match(raw); !ok {
			return nil, false
		}
		var v T
		if err := decodeLenient([]byte(raw), &v); err != nil {
			return nil, false
		}
		return v, true
	}
}
