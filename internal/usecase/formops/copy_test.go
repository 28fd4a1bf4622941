package formops

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally-node/internal/domain"
)

func fiveBlockSource() domain.Form {
	f := domain.Form{ID: "src", UpdatedAt: "s1"}
	for i := 0; i < 5; i++ {
		f.Blocks = append(f.Blocks, domain.Block{
			UUID:      fmt.Sprintf("s%d", i),
			Type:      "INPUT_TEXT",
			Label:     fmt.Sprintf("Q%d", i),
			GroupUUID: fmt.Sprintf("sg%d", i),
			GroupType: "INPUT_TEXT",
		})
	}
	return f
}

func twoBlockDest() domain.Form {
	return domain.Form{ID: "dst", Name: "Dest", UpdatedAt: "d1", Blocks: []domain.Block{
		{UUID: "d0", Type: "INPUT_TEXT", GroupUUID: "dg0"},
		{UUID: "d1", Type: "INPUT_TEXT", GroupUUID: "dg1"},
	}}
}

func TestCopyAllReplaceContents(t *testing.T) {
	svc, api, _ := newTestService(t, fiveBlockSource(), twoBlockDest())

	res, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID:    "src",
		DestFormID:      "dst",
		CopyAll:         true,
		ReplaceContents: true,
		Flags:           commitFlags(),
	})
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.Len(t, api.updates, 1)
	assert.Equal(t, "dst", api.updates[0].formID)

	written := api.updates[0].update.Blocks
	require.Len(t, written, 5)
	ids := map[string]bool{}
	for i, b := range written {
		assert.Equal(t, fmt.Sprintf("Q%d", i), b.Label)
		assert.NotContains(t, []string{"s0", "s1", "s2", "s3", "s4", "d0", "d1"}, b.UUID)
		assert.NotEqual(t, fmt.Sprintf("sg%d", i), b.GroupUUID)
		ids[b.UUID] = true
	}
	assert.Len(t, ids, 5)

	require.NotNil(t, res.Backup)
	assert.Len(t, res.Backup.Blocks, 2)
}

func TestCopyReplaceContentsRequiresCopyAll(t *testing.T) {
	svc, api, _ := newTestService(t, fiveBlockSource(), twoBlockDest())
	_, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "src", DestFormID: "dst", Groups: []string{"sg1"}, ReplaceContents: true,
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Zero(t, api.getCalls)
}

func TestCopyNothingSelected(t *testing.T) {
	svc, api, _ := newTestService(t, fiveBlockSource(), twoBlockDest())
	_, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "src", DestFormID: "dst", Groups: []string{" "}, Flags: commitFlags(),
	})
	require.Error(t, err)
	assert.Equal(t, "No questions selected. Choose Source Questions, provide UUIDs, or enable Copy All.", domain.UserMessage(err))
	assert.Empty(t, api.updates)
}

func TestCopyUnknownSelection(t *testing.T) {
	svc, _, _ := newTestService(t, fiveBlockSource(), twoBlockDest())

	_, err := svc.CopyQuestions(context.Background(), CopyRequest{SourceFormID: "src", DestFormID: "dst", Groups: []string{"nope"}})
	require.Error(t, err)
	assert.Equal(t, domain.CodeGroupNotFound, domain.ErrorCodeOf(err))

	_, err = svc.CopyQuestions(context.Background(), CopyRequest{SourceFormID: "src", DestFormID: "dst", BlockUUIDs: []string{"zz"}})
	require.Error(t, err)
	assert.Equal(t, "Question with UUID zz not found in source form", domain.UserMessage(err))
}

func TestCopyByBlockUUIDAtPosition(t *testing.T) {
	svc, _, _ := newTestService(t, fiveBlockSource(), twoBlockDest())

	res, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "src",
		DestFormID:   "dst",
		BlockUUIDs:   []string{"s3", "s1", "s3"},
		Position:     domain.After("d0"),
		Flags:        Flags{DryRun: true},
	})
	require.NoError(t, err)
	assert.True(t, res.Preview)
	assert.Equal(t, "dst", res.DestFormID)

	labels := make([]string, len(res.ProposedBlocks))
	for i, b := range res.ProposedBlocks {
		labels[i] = b.Label
	}
	assert.Equal(t, []string{"", "Q3", "Q1", ""}, labels)
	assert.Equal(t, "d0", res.ProposedBlocks[0].UUID)
	assert.Equal(t, "d1", res.ProposedBlocks[3].UUID)
	assert.Equal(t, domain.ChangeSummary{Added: 2}, res.Summary())
}

func TestCopyReattachesTitle(t *testing.T) {
	svc, _, _ := newTestService(t, threeBlockForm(), twoBlockDest())

	res, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "f1", DestFormID: "dst", Groups: []string{"g1"}, Flags: Flags{DryRun: true},
	})
	require.NoError(t, err)
	require.Len(t, res.ProposedBlocks, 4)
	title, field := res.ProposedBlocks[2], res.ProposedBlocks[3]
	assert.Equal(t, domain.BlockTypeTitle, title.Type)
	assert.NotEqual(t, "t1", title.UUID)
	assert.NotEqual(t, "gt", title.GroupUUID)
	assert.Equal(t, "Name", field.Label)

	res, err = svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "f1", DestFormID: "dst", Groups: []string{"g1"}, SkipTitles: true, Flags: Flags{DryRun: true},
	})
	require.NoError(t, err)
	assert.Len(t, res.ProposedBlocks, 3)
}

func TestCopyWithinSameForm(t *testing.T) {
	svc, api, _ := newTestService(t, threeBlockForm())

	res, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "f1", DestFormID: "f1", Groups: []string{"g2"}, Flags: Flags{DryRun: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, api.getCalls, "same form is fetched once")
	require.Len(t, res.ProposedBlocks, 4)
	assert.Equal(t, "Score", res.ProposedBlocks[3].Label)
	assert.NotEqual(t, "r1", res.ProposedBlocks[3].UUID)
}

func TestCopyDestinationConflict(t *testing.T) {
	svc, api, _ := newTestService(t, fiveBlockSource(), twoBlockDest())
	api.getHook = func(call int, f *domain.Form) {
		if f.ID == "dst" && call > 2 {
			f.UpdatedAt = "d2"
		}
	}

	_, err := svc.CopyQuestions(context.Background(), CopyRequest{
		SourceFormID: "src", DestFormID: "dst", CopyAll: true, Flags: commitFlags(),
	})
	require.Error(t, err)
	assert.Equal(t, "Destination form changed since read. Re-run to avoid conflicts.", domain.UserMessage(err))
	assert.Empty(t, api.updates)
}

func TestCopyRequiresBothForms(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CopyQuestions(context.Background(), CopyRequest{SourceFormID: "src", CopyAll: true})
	assert.True(t, domain.IsValidation(err))
}
