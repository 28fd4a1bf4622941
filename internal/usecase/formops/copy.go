package formops

import (
	"context"
	"fmt"
	"strings"

	"tally-node/internal/domain"
	"tally-node/internal/usecase/blocks"
)

const msgNoQuestions = "No questions selected. Choose Source Questions, provide UUIDs, or enable Copy All."

// CopyRequest copies question groups from one form into another (or the
// same) form.
type CopyRequest struct {
	SourceFormID string
	DestFormID   string

	// Groups selects groups by group key. BlockUUIDs selects the groups of
	// the given blocks and is only consulted when Groups is empty. CopyAll
	// overrides both.
	Groups     []string
	BlockUUIDs []string
	CopyAll    bool

	// ReplaceContents empties the destination first; only valid with CopyAll.
	ReplaceContents bool
	// SkipTitles disables reattaching the title block preceding a group.
	SkipTitles bool

	Position domain.Position
	Flags    Flags
}

// CopyQuestions clones the selected groups with fresh ids and inserts them
// into the destination as one contiguous run.
func (s *Service) CopyQuestions(ctx context.Context, req CopyRequest) (res *EditResult, err error) {
	const op = "copy_questions"
	ctx, end := s.startOp(ctx, op, req.DestFormID, req.Flags)
	defer end(&err)

	if req.SourceFormID == "" || req.DestFormID == "" {
		return nil, domain.NewSubSystemError("form", "formops."+op, domain.ErrInvalidInput,
			"Source and destination form IDs are required")
	}
	if req.ReplaceContents && !req.CopyAll {
		return nil, domain.NewValidationError("formops."+op, "Replace Contents requires Copy All")
	}
	if err := validatePosition(op, req.Position); err != nil {
		return nil, err
	}

	source, err := s.fetch(ctx, req.SourceFormID)
	if err != nil {
		return nil, err
	}
	dest := source
	if req.DestFormID != req.SourceFormID {
		if dest, err = s.fetch(ctx, req.DestFormID); err != nil {
			return nil, err
		}
	}

	groups, err := selectGroups(op, source.Blocks, req)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(groups))
	for _, g := range groups {
		selected[g] = true
	}
	var run []domain.Block
	for _, g := range groups {
		if !req.SkipTitles {
			if title, ok := blocks.PrecedingTitle(source.Blocks, g); ok && !selected[title.GroupKey()] {
				run = append(run, blocks.CloneBlockWithNewIDs(title, true))
			}
		}
		run = append(run, blocks.CloneGroupBlocks(source.Blocks, g)...)
	}

	base := dest.Blocks
	if req.CopyAll && req.ReplaceContents {
		base = []domain.Block{}
	} else {
		s.checkPosition(op, base, req.Position)
	}
	next := blocks.EnsureUniqueUUIDs(blocks.InsertBlocks(base, run, req.Position))

	s.logger.Debug("copy selection",
		"source_form_id", req.SourceFormID,
		"dest_form_id", req.DestFormID,
		"groups", len(groups),
		"blocks", len(run),
	)

	return s.apply(ctx, edit{
		op:          op,
		formID:      req.DestFormID,
		before:      dest,
		next:        next,
		flags:       req.Flags,
		conflictMsg: msgDestConflict,
		destForm:    true,
	})
}

// selectGroups resolves the request's selection to source group keys, in
// selection order without duplicates.
func selectGroups(op string, seq []domain.Block, req CopyRequest) ([]string, error) {
	if req.CopyAll {
		return blocks.GroupKeys(seq), nil
	}

	known := make(map[string]bool)
	for _, k := range blocks.GroupKeys(seq) {
		known[k] = true
	}

	var out []string
	seen := make(map[string]bool)
	add := func(g string) {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}

	switch {
	case len(req.Groups) > 0:
		for _, g := range req.Groups {
			g = strings.TrimSpace(g)
			if g == "" {
				continue
			}
			if !known[g] {
				return nil, domain.NewSubSystemError("group", "formops."+op, domain.ErrInvalidInput,
					fmt.Sprintf("Question group %s not found in source form", g))
			}
			add(g)
		}
	case len(req.BlockUUIDs) > 0:
		for _, id := range req.BlockUUIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			g, ok := blocks.ResolveGroupUUIDByBlockUUID(seq, id)
			if !ok {
				return nil, domain.NewSubSystemError("field", "formops."+op, domain.ErrInvalidInput,
					fmt.Sprintf("Question with UUID %s not found in source form", id))
			}
			add(g)
		}
	}

	if len(out) == 0 {
		return nil, domain.NewValidationError("formops."+op, msgNoQuestions)
	}
	return out, nil
}
