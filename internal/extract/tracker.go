package extract

// Tracker records what one stream has already emitted. It never shrinks.
type Tracker struct {
	seen map[string]map[string]struct{}
	last map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{
		seen: make(map[string]map[string]struct{}),
		last: make(map[string]string),
	}
}

// Admit reports whether identity is new for kind and records it.
func (t *Tracker) Admit(kind, identity string) bool {
	ids, ok := t.seen[kind]
	if !ok {
		ids = make(map[string]struct{})
		t.seen[kind] = ids
	}
	if _, dup := ids[identity]; dup {
		return false
	}
	ids[identity] = struct{}{}
	return true
}

// Changed reports whether value differs from the last value recorded for kind,
// and records it.
func (t *Tracker) Changed(kind, value string) bool {
	if prev, ok := t.last[kind]; ok && prev == value {
		return false
	}
	t.last[kind] = value
	return true
}
