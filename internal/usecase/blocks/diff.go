package blocks

import (
	"sort"

	"tally-node/internal/domain"
)

// DiffOptions tunes DiffBlocks.
type DiffOptions struct {
	// Depth is how many payload levels changed keys are itemized to.
	// 1 (the default, also used for values <= 0) lists top-level keys only;
	// deeper changes below Depth surface as their ancestor key.
	Depth int
}

// DiffBlocks compares two block sequences by uuid. Added and updated entries
// come in after order, followed by removed entries in before order.
//
// A block is updated when its type or label differ (meta) or its payload
// differs (payload). When both payloads carry an options list and the payload
// changed, an options delta counts values added and removed.
func DiffBlocks(before, after []domain.Block, opts ...DiffOptions) []domain.BlockChange {
	depth := 1
	if len(opts) > 0 && opts[0].Depth > 1 {
		depth = opts[0].Depth
	}

	prev := make(map[string]domain.Block, len(before))
	for _, b := range before {
		prev[b.UUID] = b
	}
	next := make(map[string]domain.Block, len(after))
	for _, b := range after {
		next[b.UUID] = b
	}

	changes := make([]domain.BlockChange, 0)
	emitted := make(map[string]bool, len(after))
	for _, a := range after {
		if emitted[a.UUID] {
			continue
		}
		emitted[a.UUID] = true
		a = next[a.UUID]

		b, existed := prev[a.UUID]
		if !existed {
			c := domain.BlockChange{UUID: a.UUID, Type: a.Type, Label: a.Label, Change: domain.ChangeAdded}
			if a.HasPayload() {
				c.Details = &domain.ChangeDetails{Payload: true}
			}
			changes = append(changes, c)
			continue
		}

		if d := compareBlocks(b, a, depth); d != nil {
			changes = append(changes, domain.BlockChange{
				UUID: a.UUID, Type: a.Type, Label: a.Label,
				Change: domain.ChangeUpdated, Details: d,
			})
		}
	}

	for _, b := range before {
		if _, kept := next[b.UUID]; kept || emitted[b.UUID] {
			continue
		}
		emitted[b.UUID] = true
		changes = append(changes, domain.BlockChange{
			UUID: b.UUID, Type: b.Type, Label: b.Label, Change: domain.ChangeRemoved,
		})
	}
	return changes
}

// compareBlocks returns nil when the blocks are equivalent.
func compareBlocks(before, after domain.Block, depth int) *domain.ChangeDetails {
	meta := before.Type != after.Type || before.Label != after.Label
	keys := changedKeys(map[string]any(before.Payload), map[string]any(after.Payload), "", depth)
	if !meta && len(keys) == 0 {
		return nil
	}

	d := &domain.ChangeDetails{Meta: meta, Payload: len(keys) > 0, ChangedKeys: keys}
	if d.Payload {
		bo, bok := before.Payload.Options()
		ao, aok := after.Payload.Options()
		if bok && aok {
			d.OptionsDelta = optionsDelta(bo, ao)
		}
	}
	return d
}

// changedKeys lists the dotted paths of payload entries that differ, itemized
// down to depth levels. A missing payload compares as empty.
func changedKeys(before, after map[string]any, prefix string, depth int) []string {
	seen := make(map[string]bool, len(before)+len(after))
	var keys []string
	for k := range before {
		seen[k] = true
	}
	for k := range after {
		seen[k] = true
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		bv, bok := before[k]
		av, aok := after[k]
		if bok == aok && domain.ValuesEqual(bv, av) {
			continue
		}
		path := prefix + k
		bm, bIsMap := bv.(map[string]any)
		am, aIsMap := av.(map[string]any)
		if depth > 1 && bIsMap && aIsMap {
			keys = append(keys, changedKeys(bm, am, path+".", depth-1)...)
			continue
		}
		keys = append(keys, path)
	}
	return keys
}

func optionsDelta(before, after []any) *domain.OptionsDelta {
	bv := optionValues(before)
	av := optionValues(after)
	d := &domain.OptionsDelta{BeforeCount: len(before), AfterCount: len(after)}
	for v := range av {
		if !bv[v] {
			d.Added++
		}
	}
	for v := range bv {
		if !av[v] {
			d.Removed++
		}
	}
	return d
}

func optionValues(opts []any) map[string]bool {
	out := make(map[string]bool, len(opts))
	for _, o := range opts {
		if m, ok := o.(map[string]any); ok {
			out[optionKey(m["value"])] = true
		}
	}
	return out
}
