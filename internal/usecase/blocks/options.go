package blocks

import (
	"encoding/json"

	"tally-node/internal/domain"
)

// UpdateSelectOptions rewrites a block's payload options.
//
// Without preserveExtras the options are replaced by the given list. With it,
// options merge by value: a matching existing option takes the new label in
// place, existing options with no match are kept, and unmatched new options
// are appended in the order given.
func UpdateSelectOptions(b domain.Block, options []domain.SelectOption, preserveExtras bool) domain.Block {
	out := b.Clone()
	if out.Payload == nil {
		out.Payload = domain.Payload{}
	}

	if !preserveExtras {
		next := make([]any, 0, len(options))
		for _, o := range options {
			next = append(next, o.Map())
		}
		out.Payload["options"] = next
		return out
	}

	existing, _ := out.Payload.Options()
	next := make([]any, 0, len(existing)+len(options))
	index := make(map[string]int, len(existing))
	for _, e := range existing {
		if m, ok := e.(map[string]any); ok {
			index[optionKey(m["value"])] = len(next)
		}
		next = append(next, e)
	}

	for _, o := range options {
		key := optionKey(o.Value)
		if i, ok := index[key]; ok {
			if m, ok := next[i].(map[string]any); ok {
				m["label"] = o.Label
				continue
			}
		}
		index[key] = len(next)
		next = append(next, o.Map())
	}
	out.Payload["options"] = next
	return out
}

// optionKey is the identity an option is matched by: its value, canonically
// encoded so 1 and 1.0 match.
func optionKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
