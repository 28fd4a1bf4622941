package blocks

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"tally-node/internal/domain"
)

// CloneBlockWithNewIDs copies b with a fresh uuid, and a fresh group uuid
// when regenerateGroup is set.
func CloneBlockWithNewIDs(b domain.Block, regenerateGroup bool) domain.Block {
	out := b.Clone()
	out.UUID = GenerateUUID()
	if regenerateGroup {
		out.GroupUUID = GenerateUUID()
	}
	return out
}

// CloneGroupBlocks copies every block whose group key is groupKey. The copies
// share one new group uuid, each gets a new uuid, and relative order is kept.
// An unknown group yields an empty sequence.
func CloneGroupBlocks(seq []domain.Block, groupKey string) []domain.Block {
	var out []domain.Block
	newGroup := ""
	for _, b := range seq {
		if b.GroupKey() != groupKey {
			continue
		}
		if newGroup == "" {
			newGroup = GenerateUUID()
		}
		c := b.Clone()
		c.UUID = GenerateUUID()
		c.GroupUUID = newGroup
		out = append(out, c)
	}
	if out == nil {
		return []domain.Block{}
	}
	return out
}

// ResolveGroupUUIDByBlockUUID returns the group key of the block with the
// given uuid, and false when no block matches.
func ResolveGroupUUIDByBlockUUID(seq []domain.Block, id string) (string, bool) {
	m := FindBlockByUUID(seq, id)
	if !m.Found() {
		return "", false
	}
	return m.Block.GroupKey(), true
}

// EnsureUniqueUUIDs walks the sequence once and gives every repeated uuid
// after its first occurrence a fresh one.
func EnsureUniqueUUIDs(seq []domain.Block) []domain.Block {
	seen := make(map[string]bool, len(seq))
	out := CloneBlocks(seq)
	for i := range out {
		if seen[out[i].UUID] {
			out[i].UUID = GenerateUUID()
		}
		seen[out[i].UUID] = true
	}
	return out
}

// GroupKeys lists distinct group keys in order of first appearance.
func GroupKeys(seq []domain.Block) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, b := range seq {
		k := b.GroupKey()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// PrecedingTitle returns the block just before the group's first member when
// it is a question title (type TITLE, group type QUESTION).
func PrecedingTitle(seq []domain.Block, groupKey string) (domain.Block, bool) {
	for i, b := range seq {
		if b.GroupKey() != groupKey {
			continue
		}
		if i == 0 {
			return domain.Block{}, false
		}
		prev := seq[i-1]
		if prev.Type == domain.BlockTypeTitle && prev.GroupType == domain.GroupTypeQuestion {
			return prev.Clone(), true
		}
		return domain.Block{}, false
	}
	return domain.Block{}, false
}

// QuestionGroup is a display entry for one group of blocks.
type QuestionGroup struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Type       string `json:"type,omitempty"`
	BlockCount int    `json:"blockCount"`
}

var primaryFieldType = regexp.MustCompile(`^(INPUT_|TEXTAREA|RATING|FILE_UPLOAD)`)

// QuestionGroups summarizes every group for selection lists. A group is named
// by the title block preceding it, else by a member label (input-style
// members preferred), else by its type and size. Entries are sorted by name.
func QuestionGroups(seq []domain.Block) []QuestionGroup {
	members := make(map[string][]domain.Block)
	for _, b := range seq {
		k := b.GroupKey()
		members[k] = append(members[k], b)
	}

	groups := make([]QuestionGroup, 0, len(members))
	for _, key := range GroupKeys(seq) {
		bs := members[key]
		typ := bs[0].GroupType
		if typ == "" {
			typ = bs[0].Type
		}
		if typ == "" {
			typ = domain.GroupTypeQuestion
		}
		g := QuestionGroup{Value: key, Type: typ, BlockCount: len(bs)}
		if t, ok := PrecedingTitle(seq, key); ok {
			g.Name = TitleText(t)
		}
		if g.Name == "" {
			g.Name = memberLabel(bs)
		}
		if g.Name == "" {
			noun := "blocks"
			if len(bs) == 1 {
				noun = "block"
			}
			g.Name = fmt.Sprintf("%s (%d %s)", typ, len(bs), noun)
		}
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

func memberLabel(bs []domain.Block) string {
	for _, b := range bs {
		if primaryFieldType.MatchString(b.Type) && strings.TrimSpace(b.Label) != "" {
			return strings.TrimSpace(b.Label)
		}
	}
	for _, b := range bs {
		if strings.TrimSpace(b.Label) != "" {
			return strings.TrimSpace(b.Label)
		}
	}
	return ""
}

// TitleText flattens a title block's safeHTMLSchema rich text into plain
// text, joining every string it contains with single spaces.
func TitleText(b domain.Block) string {
	var parts []string
	collectText(b.Payload["safeHTMLSchema"], &parts)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func collectText(v any, parts *[]string) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			collectText(e, parts)
		}
	case string:
		*parts = append(*parts, t)
	}
}
