package domain

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Payload is a block's free-form data document. Values are JSON-shaped:
// nil, bool, float64 (or other numbers when built in Go), string, []any and
// map[string]any.
type Payload map[string]any

// Clone deep-copies the payload. A nil payload stays nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = CloneValue(v)
	}
	return out
}

// Merge returns a copy of p with every key of patch written over it.
func (p Payload) Merge(patch Payload) Payload {
	out := p.Clone()
	if out == nil {
		out = make(Payload, len(patch))
	}
	for k, v := range patch {
		out[k] = CloneValue(v)
	}
	return out
}

// Options returns the payload's "options" list and whether one is present.
func (p Payload) Options() ([]any, bool) {
	if p == nil {
		return nil, false
	}
	opts, ok := p["options"].([]any)
	return opts, ok
}

// CloneValue deep-copies a JSON-shaped value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case Payload:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}

// ValuesEqual compares two JSON-shaped values structurally. Values built in
// Go (ints, typed slices) compare equal to their decoded JSON counterparts.
func ValuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
