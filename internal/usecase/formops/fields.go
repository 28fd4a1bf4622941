package formops

import (
	"context"
	"fmt"
	"strings"

	"tally-node/internal/domain"
	"tally-node/internal/usecase/blocks"
)

// FieldSelector targets one field by block uuid or by label. The uuid wins
// when both are set.
type FieldSelector struct {
	UUID  string `json:"uuid,omitempty"`
	Label string `json:"label,omitempty"`
}

func (s FieldSelector) empty() bool {
	return strings.TrimSpace(s.UUID) == "" && strings.TrimSpace(s.Label) == ""
}

// MergeStrategy says how a payload patch is applied.
type MergeStrategy string

const (
	// MergeShallow writes the patch's top-level keys over the payload.
	MergeShallow MergeStrategy = "merge"
	// MergeReplace swaps the payload for the patch.
	MergeReplace MergeStrategy = "replace"
)

// AddFieldRequest adds one field, optionally preceded by a title block.
type AddFieldRequest struct {
	FormID   string
	Field    blocks.FieldSpec
	Position domain.Position
	Flags    Flags
}

// AddField inserts the blocks of a new field as one contiguous run.
func (s *Service) AddField(ctx context.Context, req AddFieldRequest) (res *EditResult, err error) {
	const op = "add_field"
	ctx, end := s.startOp(ctx, op, req.FormID, req.Flags)
	defer end(&err)

	if err := requireFormID(op, req.FormID); err != nil {
		return nil, err
	}
	if err := validatePosition(op, req.Position); err != nil {
		return nil, err
	}
	run, ok := blocks.NewFieldBlocks(req.Field)
	if !ok {
		return nil, domain.NewSubSystemError("options", "formops."+op, domain.ErrInvalidInput,
			"Options (JSON) is required for this field type and must be a non-empty array of strings.")
	}

	before, err := s.fetch(ctx, req.FormID)
	if err != nil {
		return nil, err
	}
	s.checkPosition(op, before.Blocks, req.Position)

	return s.apply(ctx, edit{
		op:     op,
		formID: req.FormID,
		before: before,
		next:   blocks.InsertBlocks(before.Blocks, run, req.Position),
		flags:  req.Flags,
	})
}

// UpdateFieldRequest patches the payload of one field.
type UpdateFieldRequest struct {
	FormID   string
	Target   FieldSelector
	Patch    domain.Payload
	Strategy MergeStrategy
	Flags    Flags
}

// UpdateField merges (or replaces) the payload of the targeted block.
func (s *Service) UpdateField(ctx context.Context, req UpdateFieldRequest) (res *EditResult, err error) {
	const op = "update_field"
	ctx, end := s.startOp(ctx, op, req.FormID, req.Flags)
	defer end(&err)

	if err := requireFormID(op, req.FormID); err != nil {
		return nil, err
	}
	if req.Target.empty() {
		return nil, domain.NewSubSystemError("field", "formops."+op, domain.ErrInvalidInput,
			"Target field requires a UUID or a label")
	}

	before, err := s.fetch(ctx, req.FormID)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, op, req.FormID, before.Blocks, req.Target)
	if err != nil {
		return nil, err
	}

	nb := target.Clone()
	if req.Strategy == MergeReplace {
		nb.Payload = req.Patch.Clone()
	} else {
		nb.Payload = nb.Payload.Merge(req.Patch)
	}

	return s.apply(ctx, edit{
		op:     op,
		formID: req.FormID,
		before: before,
		next:   blocks.ReplaceBlock(before.Blocks, nb.UUID, nb),
		flags:  req.Flags,
	})
}

// DeleteFieldsRequest removes fields selected by uuid and/or label.
type DeleteFieldsRequest struct {
	FormID string
	UUIDs  []string
	Labels []string
	// WithGroup also removes every block sharing a group with a target.
	WithGroup bool
	Flags     Flags
}

// DeleteFields removes the selected blocks. Labels that match no question are
// skipped; uuids not present in the form are ignored. Nothing left to remove
// is a validation error.
func (s *Service) DeleteFields(ctx context.Context, req DeleteFieldsRequest) (res *EditResult, err error) {
	const op = "delete_fields"
	ctx, end := s.startOp(ctx, op, req.FormID, req.Flags)
	defer end(&err)

	if err := requireFormID(op, req.FormID); err != nil {
		return nil, err
	}

	before, err := s.fetch(ctx, req.FormID)
	if err != nil {
		return nil, err
	}

	candidates := append([]string(nil), req.UUIDs...)
	var labels []string
	for _, label := range req.Labels {
		if strings.TrimSpace(label) != "" {
			labels = append(labels, label)
		}
	}
	if len(labels) > 0 {
		questions, err := s.api.ListQuestions(ctx, req.FormID)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			m := blocks.FindBlockByLabel(questions, label)
			if !m.Found() || m.BlockUUID == "" {
				s.logger.Debug("delete label not found", "form_id", req.FormID, "label", label)
				continue
			}
			candidates = append(candidates, m.BlockUUID)
		}
	}

	present := make(map[string]bool, len(before.Blocks))
	for _, b := range before.Blocks {
		present[b.UUID] = true
	}
	var targets []string
	seen := make(map[string]bool)
	for _, id := range candidates {
		id = strings.TrimSpace(id)
		if id == "" || !present[id] || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return nil, domain.NewSubSystemError("field", "formops."+op, domain.ErrInvalidInput,
			"No matching fields were found to delete")
	}

	if req.WithGroup {
		groups := make(map[string]bool)
		for _, id := range targets {
			if g, ok := blocks.ResolveGroupUUIDByBlockUUID(before.Blocks, id); ok {
				groups[g] = true
			}
		}
		for _, b := range before.Blocks {
			if groups[b.GroupKey()] && !seen[b.UUID] {
				seen[b.UUID] = true
				targets = append(targets, b.UUID)
			}
		}
	}

	return s.apply(ctx, edit{
		op:     op,
		formID: req.FormID,
		before: before,
		next:   blocks.RemoveBlocks(before.Blocks, targets),
		flags:  req.Flags,
	})
}

// SyncOptionsRequest rewrites the options list of a choice block.
type SyncOptionsRequest struct {
	FormID  string
	Target  FieldSelector
	Options []domain.SelectOption
	// PreserveExtras merges by value instead of replacing the list.
	PreserveExtras bool
	Flags          Flags
}

// SyncSelectOptions replaces or merges payload.options of the targeted block.
func (s *Service) SyncSelectOptions(ctx context.Context, req SyncOptionsRequest) (res *EditResult, err error) {
	const op = "sync_select_options"
	ctx, end := s.startOp(ctx, op, req.FormID, req.Flags)
	defer end(&err)

	if err := requireFormID(op, req.FormID); err != nil {
		return nil, err
	}
	if req.Target.empty() {
		return nil, domain.NewSubSystemError("field", "formops."+op, domain.ErrInvalidInput,
			"Target field requires a UUID or a label")
	}
	if len(req.Options) == 0 {
		return nil, domain.NewSubSystemError("options", "formops."+op, domain.ErrInvalidInput,
			"Options must be a non-empty array")
	}

	before, err := s.fetch(ctx, req.FormID)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, op, req.FormID, before.Blocks, req.Target)
	if err != nil {
		return nil, err
	}

	nb := blocks.UpdateSelectOptions(target, req.Options, req.PreserveExtras)
	return s.apply(ctx, edit{
		op:     op,
		formID: req.FormID,
		before: before,
		next:   blocks.ReplaceBlock(before.Blocks, nb.UUID, nb),
		flags:  req.Flags,
	})
}

// resolveTarget finds the block a selector points at. Labels go through the
// live question listing; only then is the listing fetched.
func (s *Service) resolveTarget(ctx context.Context, op, formID string, seq []domain.Block, sel FieldSelector) (domain.Block, error) {
	id := strings.TrimSpace(sel.UUID)
	if id == "" {
		questions, err := s.api.ListQuestions(ctx, formID)
		if err != nil {
			return domain.Block{}, err
		}
		m := blocks.FindBlockByLabel(questions, sel.Label)
		if !m.Found() || m.BlockUUID == "" {
			return domain.Block{}, domain.NewSubSystemError("field", "formops."+op, domain.ErrInvalidInput,
				fmt.Sprintf("Field with label %q not found", strings.TrimSpace(sel.Label)))
		}
		id = m.BlockUUID
	}

	m := blocks.FindBlockByUUID(seq, id)
	if !m.Found() {
		return domain.Block{}, domain.NewSubSystemError("field", "formops."+op, domain.ErrInvalidInput,
			fmt.Sprintf("Field with UUID %s not found", id))
	}
	return *m.Block, nil
}
