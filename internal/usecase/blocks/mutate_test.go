package blocks

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally-node/internal/domain"
)

var uuidV4 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func mustBlocks(t *testing.T, raw string) []domain.Block {
	t.Helper()
	var seq []domain.Block
	require.NoError(t, json.Unmarshal([]byte(raw), &seq))
	return seq
}

func uuids(seq []domain.Block) []string {
	out := make([]string, len(seq))
	for i, b := range seq {
		out[i] = b.UUID
	}
	return out
}

func sample(t *testing.T) []domain.Block {
	return mustBlocks(t, `[
		{"uuid":"a","type":"TITLE","groupUuid":"ga","groupType":"QUESTION","payload":{"safeHTMLSchema":[["Favourite colour"]]}},
		{"uuid":"b1","type":"DROPDOWN_OPTION","label":"Red","groupUuid":"gb","groupType":"DROPDOWN","payload":{"index":0}},
		{"uuid":"b2","type":"DROPDOWN_OPTION","label":"Blue","groupUuid":"gb","groupType":"DROPDOWN","payload":{"index":1}},
		{"uuid":"c","type":"INPUT_TEXT","label":"Name","payload":{"isRequired":true},"custom":{"keep":1}}
	]`)
}

func TestGenerateUUID(t *testing.T) {
	a, b := GenerateUUID(), GenerateUUID()
	assert.Regexp(t, uuidV4, a)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestCloneBlocks_DoesNotAlias(t *testing.T) {
	seq := sample(t)
	c := CloneBlocks(seq)
	c[3].Payload["isRequired"] = false
	c[3].Label = "changed"
	assert.Equal(t, true, seq[3].Payload["isRequired"])
	assert.Equal(t, "Name", seq[3].Label)
	assert.Nil(t, CloneBlocks(nil))
}

func TestFindBlockByUUID(t *testing.T) {
	seq := sample(t)
	m := FindBlockByUUID(seq, "b2")
	require.True(t, m.Found())
	assert.Equal(t, 2, m.Index)
	assert.Equal(t, "Blue", m.Block.Label)

	miss := FindBlockByUUID(seq, "zzz")
	assert.False(t, miss.Found())
	assert.Equal(t, -1, miss.Index)
	assert.Nil(t, miss.Block)
}

func TestFindBlockByLabel(t *testing.T) {
	questions := []domain.Question{
		{ID: "q0", Title: "Other"},
		{ID: "q1", BlockUUID: "blk-1", Label: "  Email  "},
		{UUID: "u2", Title: "Email"},
	}
	m := FindBlockByLabel(questions, "Email ")
	require.True(t, m.Found())
	assert.Equal(t, "blk-1", m.BlockUUID)

	m = FindBlockByLabel(questions, "Other")
	assert.Equal(t, "q0", m.BlockUUID)

	assert.False(t, FindBlockByLabel(questions, "Phone").Found())
}

func TestFindBlockByLabel_BlankMatchesNothing(t *testing.T) {
	questions := []domain.Question{{BlockUUID: "q1"}, {BlockUUID: "q2", Label: "Name"}}
	assert.False(t, FindBlockByLabel(questions, "").Found())
	assert.False(t, FindBlockByLabel(questions, "   ").Found())
}

func TestInsertBlock_Positions(t *testing.T) {
	seq := sample(t)
	nb := domain.Block{UUID: "n"}

	tests := []struct {
		name string
		pos  domain.Position
		want []string
	}{
		{"unspecified appends", domain.Position{}, []string{"a", "b1", "b2", "c", "n"}},
		{"end", domain.AtEnd(), []string{"a", "b1", "b2", "c", "n"}},
		{"index", domain.AtIndex(1), []string{"a", "n", "b1", "b2", "c"}},
		{"index clamped low", domain.AtIndex(-5), []string{"n", "a", "b1", "b2", "c"}},
		{"index clamped high", domain.AtIndex(99), []string{"a", "b1", "b2", "c", "n"}},
		{"before", domain.Before("b2"), []string{"a", "b1", "n", "b2", "c"}},
		{"after", domain.After("b2"), []string{"a", "b1", "b2", "n", "c"}},
		{"missing ref appends", domain.After("nope"), []string{"a", "b1", "b2", "c", "n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := InsertBlock(seq, nb, tt.pos)
			assert.Equal(t, tt.want, uuids(out))
			assert.Len(t, seq, 4, "input must not change")
		})
	}
}

func TestInsertBlocks_KeepsRunOrderAfterRef(t *testing.T) {
	seq := sample(t)
	run := []domain.Block{{UUID: "x"}, {UUID: "y"}}
	out := InsertBlocks(seq, run, domain.After("a"))
	assert.Equal(t, []string{"a", "x", "y", "b1", "b2", "c"}, uuids(out))
}

func TestResolveInsertion(t *testing.T) {
	seq := sample(t)
	at, ok := ResolveInsertion(seq, domain.Before("c"))
	assert.True(t, ok)
	assert.Equal(t, 3, at)
	at, ok = ResolveInsertion(seq, domain.Before("missing"))
	assert.False(t, ok)
	assert.Equal(t, 4, at)
}

func TestInsertRemoveInverse(t *testing.T) {
	seq := sample(t)
	for _, pos := range []domain.Position{domain.AtEnd(), domain.AtIndex(0), domain.AtIndex(2), domain.Before("c"), domain.After("a")} {
		out := RemoveBlocks(InsertBlock(seq, domain.Block{UUID: "u"}, pos), []string{"u"})
		assert.Equal(t, seq, out)
	}
}

func TestReplaceBlock(t *testing.T) {
	seq := sample(t)
	out := ReplaceBlock(seq, "c", domain.Block{UUID: "c", Type: "TEXTAREA", Label: "Bio"})
	assert.Equal(t, "TEXTAREA", out[3].Type)
	assert.Equal(t, "INPUT_TEXT", seq[3].Type)

	same := ReplaceBlock(seq, "missing", domain.Block{UUID: "z"})
	assert.Equal(t, seq, same)
}

func TestRemoveBlocks_SetSemantics(t *testing.T) {
	seq := sample(t)
	out := RemoveBlocks(seq, []string{"b1", "b1", "c", "unknown"})
	assert.Equal(t, []string{"a", "b2"}, uuids(out))
}

func TestReplaceGroupBlocks(t *testing.T) {
	seq := sample(t)
	out := ReplaceGroupBlocks(seq, "gb", []domain.Block{{UUID: "r1", GroupUUID: "gr"}})
	assert.Equal(t, []string{"a", "r1", "c"}, uuids(out))

	// c has no group uuid, so its own uuid is its group key.
	out = ReplaceGroupBlocks(seq, "c", nil)
	assert.Equal(t, []string{"a", "b1", "b2"}, uuids(out))

	assert.Equal(t, seq, ReplaceGroupBlocks(seq, "nope", []domain.Block{{UUID: "z"}}))
}

func TestCloneGroupBlocks_Cohesion(t *testing.T) {
	seq := sample(t)
	out := CloneGroupBlocks(seq, "gb")
	require.Len(t, out, 2)

	group := out[0].GroupUUID
	assert.NotEqual(t, "gb", group)
	assert.Regexp(t, uuidV4, group)
	seen := map[string]bool{}
	for i, b := range out {
		assert.Equal(t, group, b.GroupUUID)
		assert.NotEqual(t, seq[i+1].UUID, b.UUID)
		assert.False(t, seen[b.UUID])
		seen[b.UUID] = true
	}
	assert.Equal(t, []string{"Red", "Blue"}, []string{out[0].Label, out[1].Label})
	assert.Empty(t, CloneGroupBlocks(seq, "nope"))
	assert.NotNil(t, CloneGroupBlocks(seq, "nope"))
}

func TestCloneBlockWithNewIDs(t *testing.T) {
	b := sample(t)[1]
	same := CloneBlockWithNewIDs(b, false)
	assert.NotEqual(t, b.UUID, same.UUID)
	assert.Equal(t, b.GroupUUID, same.GroupUUID)

	regen := CloneBlockWithNewIDs(b, true)
	assert.NotEqual(t, b.GroupUUID, regen.GroupUUID)
}

func TestResolveGroupUUIDByBlockUUID(t *testing.T) {
	seq := sample(t)
	g, ok := ResolveGroupUUIDByBlockUUID(seq, "b2")
	assert.True(t, ok)
	assert.Equal(t, "gb", g)

	g, ok = ResolveGroupUUIDByBlockUUID(seq, "c")
	assert.True(t, ok)
	assert.Equal(t, "c", g)

	_, ok = ResolveGroupUUIDByBlockUUID(seq, "nope")
	assert.False(t, ok)
}

func TestEnsureUniqueUUIDs(t *testing.T) {
	seq := []domain.Block{{UUID: "x", Label: "first"}, {UUID: "y"}, {UUID: "x", Label: "second"}, {UUID: "y"}}
	once := EnsureUniqueUUIDs(seq)
	twice := EnsureUniqueUUIDs(once)

	assert.Equal(t, once, twice)
	assert.Equal(t, "x", once[0].UUID)
	assert.Equal(t, "first", once[0].Label)
	assert.Equal(t, "y", once[1].UUID)

	seen := map[string]bool{}
	for _, b := range once {
		assert.False(t, seen[b.UUID], "duplicate uuid %s", b.UUID)
		seen[b.UUID] = true
	}
	assert.Equal(t, "x", seq[2].UUID, "input must not change")
}

func TestGroupKeys(t *testing.T) {
	assert.Equal(t, []string{"ga", "gb", "c"}, GroupKeys(sample(t)))
}

func TestPrecedingTitle(t *testing.T) {
	seq := sample(t)
	title, ok := PrecedingTitle(seq, "gb")
	require.True(t, ok)
	assert.Equal(t, "a", title.UUID)

	_, ok = PrecedingTitle(seq, "c")
	assert.False(t, ok)
	_, ok = PrecedingTitle(seq, "ga")
	assert.False(t, ok)
}

func TestQuestionGroups(t *testing.T) {
	seq := append(sample(t), domain.Block{UUID: "d", Type: "DIVIDER"})
	groups := QuestionGroups(seq)
	require.Len(t, groups, 4)

	byValue := map[string]QuestionGroup{}
	for _, g := range groups {
		byValue[g.Value] = g
	}
	assert.Equal(t, "Favourite colour", byValue["gb"].Name)
	assert.Equal(t, 2, byValue["gb"].BlockCount)
	assert.Equal(t, "DROPDOWN", byValue["gb"].Type)
	assert.Equal(t, "Name", byValue["c"].Name)
	assert.Equal(t, "DIVIDER (1 block)", byValue["d"].Name)
	assert.Equal(t, "QUESTION (1 block)", byValue["ga"].Name)

	for i := 1; i < len(groups); i++ {
		assert.LessOrEqual(t, groups[i-1].Name, groups[i].Name)
	}
}
