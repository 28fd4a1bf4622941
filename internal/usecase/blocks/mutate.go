// Package blocks is the form-block editing library: pure functions over a
// form's ordered block sequence. Every function returns a new sequence and
// leaves its inputs untouched, payloads included.
package blocks

import (
	"strings"

	"github.com/google/uuid"

	"tally-node/internal/domain"
)

// GenerateUUID returns a random (version 4) UUID string.
func GenerateUUID() string {
	return uuid.NewString()
}

// CloneBlocks deep-copies a block sequence.
func CloneBlocks(seq []domain.Block) []domain.Block {
	if seq == nil {
		return nil
	}
	out := make([]domain.Block, len(seq))
	for i, b := range seq {
		out[i] = b.Clone()
	}
	return out
}

// Match is the result of a uuid lookup. Index is -1 when nothing matched.
type Match struct {
	Index int
	Block *domain.Block
}

// Found reports whether the lookup matched a block.
func (m Match) Found() bool { return m.Index >= 0 }

// FindBlockByUUID locates the first block with the given uuid. The returned
// block is a copy.
func FindBlockByUUID(seq []domain.Block, id string) Match {
	for i, b := range seq {
		if b.UUID == id {
			c := b.Clone()
			return Match{Index: i, Block: &c}
		}
	}
	return Match{Index: -1}
}

// LabelMatch is the result of a label lookup against the questions listing.
type LabelMatch struct {
	BlockUUID string
	Question  *domain.Question
}

// Found reports whether a question matched.
func (m LabelMatch) Found() bool { return m.Question != nil }

// FindBlockByLabel returns the first question whose trimmed label (or title,
// when it has no label) equals the trimmed label. A blank label matches
// nothing.
func FindBlockByLabel(questions []domain.Question, label string) LabelMatch {
	want := strings.TrimSpace(label)
	if want == "" {
		return LabelMatch{}
	}
	for i := range questions {
		q := questions[i]
		if strings.TrimSpace(q.DisplayLabel()) == want {
			return LabelMatch{BlockUUID: q.BlockRef(), Question: &q}
		}
	}
	return LabelMatch{}
}

// InsertBlock inserts one block at pos. See InsertBlocks.
func InsertBlock(seq []domain.Block, b domain.Block, pos domain.Position) []domain.Block {
	return InsertBlocks(seq, []domain.Block{b}, pos)
}

// InsertBlocks inserts a contiguous run of blocks at pos, keeping the run's
// order. Index positions are clamped to [0, len]. Relative positions whose
// reference uuid is absent append at the end.
func InsertBlocks(seq, run []domain.Block, pos domain.Position) []domain.Block {
	at := insertionIndex(seq, pos)
	out := make([]domain.Block, 0, len(seq)+len(run))
	out = append(out, CloneBlocks(seq[:at])...)
	out = append(out, CloneBlocks(run)...)
	out = append(out, CloneBlocks(seq[at:])...)
	return out
}

// ResolveInsertion reports where pos lands in seq and whether a relative
// reference was found. Index and end positions always resolve.
func ResolveInsertion(seq []domain.Block, pos domain.Position) (int, bool) {
	switch pos.Mode {
	case domain.PositionIndex:
		return clamp(pos.Index, 0, len(seq)), true
	case domain.PositionBefore, domain.PositionAfter:
		m := FindBlockByUUID(seq, pos.Ref)
		if !m.Found() {
			return len(seq), false
		}
		if pos.Mode == domain.PositionAfter {
			return m.Index + 1, true
		}
		return m.Index, true
	default:
		return len(seq), true
	}
}

func insertionIndex(seq []domain.Block, pos domain.Position) int {
	at, _ := ResolveInsertion(seq, pos)
	return at
}

// ReplaceBlock swaps the block with the given uuid for nb. An absent uuid
// yields an unchanged copy.
func ReplaceBlock(seq []domain.Block, id string, nb domain.Block) []domain.Block {
	out := CloneBlocks(seq)
	if m := FindBlockByUUID(seq, id); m.Found() {
		out[m.Index] = nb.Clone()
	}
	return out
}

// RemoveBlocks drops every block whose uuid is in ids.
func RemoveBlocks(seq []domain.Block, ids []string) []domain.Block {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]domain.Block, 0, len(seq))
	for _, b := range seq {
		if !drop[b.UUID] {
			out = append(out, b.Clone())
		}
	}
	return out
}

// ReplaceGroupBlocks substitutes every member of the group with replacement,
// placed where the group's first member was. An absent group yields an
// unchanged copy.
func ReplaceGroupBlocks(seq []domain.Block, groupKey string, replacement []domain.Block) []domain.Block {
	out := make([]domain.Block, 0, len(seq)+len(replacement))
	replaced := false
	for _, b := range seq {
		if b.GroupKey() == groupKey {
			if !replaced {
				out = append(out, CloneBlocks(replacement)...)
				replaced = true
			}
			continue
		}
		out = append(out, b.Clone())
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
