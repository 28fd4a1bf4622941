package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
	"tally-node/internal/usecase/blocks"
	"tally-node/internal/usecase/formops"
)

// FormService is the form operation surface the tally tool exposes.
// *formops.Service implements it.
type FormService interface {
	GetAllForms(ctx context.Context) ([]domain.Form, error)
	GetForm(ctx context.Context, formID string) (*domain.Form, error)
	ListQuestions(ctx context.Context, formID string) ([]domain.Question, error)
	ListQuestionGroups(ctx context.Context, formID string) ([]blocks.QuestionGroup, error)
	AddField(ctx context.Context, req formops.AddFieldRequest) (*formops.EditResult, error)
	UpdateField(ctx context.Context, req formops.UpdateFieldRequest) (*formops.EditResult, error)
	DeleteFields(ctx context.Context, req formops.DeleteFieldsRequest) (*formops.EditResult, error)
	SyncSelectOptions(ctx context.Context, req formops.SyncOptionsRequest) (*formops.EditResult, error)
	CopyQuestions(ctx context.Context, req formops.CopyRequest) (*formops.EditResult, error)
	RollbackForm(ctx context.Context, req formops.RollbackRequest) (*formops.EditResult, error)
	GetAllSubmissions(ctx context.Context, req formops.SubmissionsRequest) ([]any, error)
}

var _ FormService = (*formops.Service)(nil)

// TallyTool reads and edits Tally forms. One invocation handles one input
// item; list-valued results are JSON arrays, one element per output record.
type TallyTool struct {
	svc      FormService
	defaults formops.Flags
	logger   *slog.Logger
	actions  ActionMap[tallyParams]
}

// NewTallyTool creates the tally tool. Edit flags a call leaves unset fall
// back to cfg.
func NewTallyTool(svc FormService, cfg config.EditConfig, logger *slog.Logger) *TallyTool {
	t := &TallyTool{
		svc: svc,
		defaults: formops.Flags{
			DryRun:     cfg.DryRun,
			Backup:     cfg.Backup,
			Optimistic: cfg.Optimistic,
		},
		logger: logger,
	}
	t.actions = ActionMap[tallyParams]{
		"get_forms":            t.handleGetForms,
		"get_form":             t.handleGetForm,
		"list_questions":       t.handleListQuestions,
		"list_question_groups": t.handleListQuestionGroups,
		"add_field":            t.handleAddField,
		"update_field":         t.handleUpdateField,
		"delete_fields":        t.handleDeleteFields,
		"sync_select_options":  t.handleSyncSelectOptions,
		"copy_questions":       t.handleCopyQuestions,
		"rollback_form":        t.handleRollbackForm,
		"get_submissions":      t.handleGetSubmissions,
	}
	return t
}

func (t *TallyTool) Name() string { return "tally" }
func (t *TallyTool) Description() string {
	return "Read and edit Tally.so forms: list forms and questions, add, update and delete fields, " +
		"sync select options, copy questions between forms, roll back from a backup, and fetch submissions. " +
		"Edits support dry-run previews, optimistic concurrency checks and backups."
}

// Actions lists the supported action names.
func (t *TallyTool) Actions() []string { return ActionNames(t.actions) }

func (t *TallyTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(tallySchema),
	}
}

const tallySchema = `{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["get_forms", "get_form", "list_questions", "list_question_groups", "add_field", "update_field", "delete_fields", "sync_select_options", "copy_questions", "rollback_form", "get_submissions"],
			"description": "The Tally operation to perform"
		},
		"form_id": {"type": "string", "description": "Form to read or edit; rollback_form also accepts __CREATE_NEW__"},
		"source_form_id": {"type": "string", "description": "copy_questions: form to copy from"},
		"dest_form_id": {"type": "string", "description": "copy_questions: form to copy into"},
		"field_type": {
			"type": "string",
			"enum": ["input", "textarea", "email", "url", "phone", "number", "select", "radio", "checkboxes", "multi_select", "date", "time", "rating", "file_upload", "custom"],
			"description": "add_field: kind of field"
		},
		"custom_type": {"type": "string", "description": "add_field: raw block type for field_type custom"},
		"label": {"type": "string", "description": "add_field: field label"},
		"title": {"type": "string", "description": "add_field: optional title block text"},
		"placeholder": {"type": "string"},
		"required": {"type": "boolean"},
		"options": {"description": "add_field: array of option texts; sync_select_options: array of {label, value}. May be a JSON string."},
		"payload": {"description": "add_field: payload merged over the defaults (object or JSON string)"},
		"position": {"type": "string", "enum": ["end", "index", "before", "after"]},
		"index": {"type": "integer", "minimum": 0},
		"ref": {"type": "string", "description": "Block uuid for position before/after"},
		"target_uuid": {"type": "string"},
		"target_label": {"type": "string"},
		"patch": {"description": "update_field: payload patch (object or JSON string)"},
		"strategy": {"type": "string", "enum": ["merge", "replace"]},
		"preserve_extras": {"type": "boolean"},
		"uuids": {"type": "array", "items": {"type": "string"}},
		"labels": {"type": "array", "items": {"type": "string"}},
		"with_group": {"type": "boolean"},
		"groups": {"type": "array", "items": {"type": "string"}},
		"block_uuids": {"type": "array", "items": {"type": "string"}},
		"copy_all": {"type": "boolean"},
		"replace_contents": {"type": "boolean"},
		"skip_titles": {"type": "boolean"},
		"backup_json": {"description": "rollback_form: backup form document (object or JSON string)"},
		"incoming": {"type": "object", "description": "Output of the previous step; rollback_form reads its backup, form, or the item itself"},
		"flatten": {"type": "boolean"},
		"dry_run": {"type": "boolean"},
		"backup": {"type": "boolean"},
		"optimistic": {"type": "boolean"}
	},
	"required": ["action"]
}`

type tallyParams struct {
	Action       string `json:"action"`
	FormID       string `json:"form_id,omitempty"`
	SourceFormID string `json:"source_form_id,omitempty"`
	DestFormID   string `json:"dest_form_id,omitempty"`

	FieldType   string          `json:"field_type,omitempty"`
	CustomType  string          `json:"custom_type,omitempty"`
	Label       string          `json:"label,omitempty"`
	Title       string          `json:"title,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Options     json.RawMessage `json:"options,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`

	Position string `json:"position,omitempty"`
	Index    int    `json:"index,omitempty"`
	Ref      string `json:"ref,omitempty"`

	TargetUUID     string          `json:"target_uuid,omitempty"`
	TargetLabel    string          `json:"target_label,omitempty"`
	Patch          json.RawMessage `json:"patch,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	PreserveExtras bool            `json:"preserve_extras,omitempty"`

	UUIDs     []string `json:"uuids,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	WithGroup bool     `json:"with_group,omitempty"`

	Groups          []string `json:"groups,omitempty"`
	BlockUUIDs      []string `json:"block_uuids,omitempty"`
	CopyAll         bool     `json:"copy_all,omitempty"`
	ReplaceContents bool     `json:"replace_contents,omitempty"`
	SkipTitles      bool     `json:"skip_titles,omitempty"`

	BackupJSON json.RawMessage `json:"backup_json,omitempty"`
	Incoming   json.RawMessage `json:"incoming,omitempty"`

	Flatten bool `json:"flatten,omitempty"`

	DryRun     *bool `json:"dry_run,omitempty"`
	Backup     *bool `json:"backup,omitempty"`
	Optimistic *bool `json:"optimistic,omitempty"`
}

func (t *TallyTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.tally", t.logger, params,
		Dispatch(func(p tallyParams) string { return p.Action }, t.actions),
	)
}

// flags applies the call's explicit flags over the configured defaults.
func (t *TallyTool) flags(p tallyParams) formops.Flags {
	f := t.defaults
	if p.DryRun != nil {
		f.DryRun = *p.DryRun
	}
	if p.Backup != nil {
		f.Backup = *p.Backup
	}
	if p.Optimistic != nil {
		f.Optimistic = *p.Optimistic
	}
	return f
}

func (t *TallyTool) handleGetForms(ctx context.Context, _ tallyParams) (any, error) {
	forms, err := t.svc.GetAllForms(ctx)
	if err != nil {
		return nil, err
	}
	if forms == nil {
		forms = []domain.Form{}
	}
	return forms, nil
}

func (t *TallyTool) handleGetForm(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	return t.svc.GetForm(ctx, p.FormID)
}

func (t *TallyTool) handleListQuestions(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	qs, err := t.svc.ListQuestions(ctx, p.FormID)
	if err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []domain.Question{}
	}
	return qs, nil
}

func (t *TallyTool) handleListQuestionGroups(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	return t.svc.ListQuestionGroups(ctx, p.FormID)
}

func (t *TallyTool) handleAddField(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	kind, err := domain.ParseFieldKind(p.FieldType)
	if err != nil {
		return nil, domain.NewValidationError("tool.tally.add_field", err.Error())
	}
	pos, err := parsePosition(p)
	if err != nil {
		return nil, err
	}

	spec := blocks.FieldSpec{
		Kind:        kind,
		CustomType:  p.CustomType,
		Label:       p.Label,
		Title:       p.Title,
		Placeholder: p.Placeholder,
		Required:    p.Required,
	}
	if resolved, _ := kind.Resolve(p.CustomType); resolved.IsChoice() {
		if spec.Options, err = optionTexts(p.Options); err != nil {
			return nil, err
		}
	}
	var payload map[string]any
	if _, err := DecodeJSONParam("Payload", p.Payload, &payload); err != nil {
		return nil, err
	}
	spec.Payload = payload

	return t.svc.AddField(ctx, formops.AddFieldRequest{
		FormID:   p.FormID,
		Field:    spec,
		Position: pos,
		Flags:    t.flags(p),
	})
}

func (t *TallyTool) handleUpdateField(ctx context.Context, p tallyParams) (any, error) {
	if err := ValidateAll(
		RequireField("form_id", p.FormID),
		ValidateEnum("strategy", p.Strategy, string(formops.MergeShallow), string(formops.MergeReplace)),
	); err != nil {
		return nil, err
	}
	strategy := formops.MergeShallow
	if p.Strategy != "" {
		strategy = formops.MergeStrategy(p.Strategy)
	}
	var patch map[string]any
	if _, err := DecodeJSONParam("Payload Patch", p.Patch, &patch); err != nil {
		return nil, err
	}
	return t.svc.UpdateField(ctx, formops.UpdateFieldRequest{
		FormID:   p.FormID,
		Target:   formops.FieldSelector{UUID: p.TargetUUID, Label: p.TargetLabel},
		Patch:    patch,
		Strategy: strategy,
		Flags:    t.flags(p),
	})
}

func (t *TallyTool) handleDeleteFields(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	return t.svc.DeleteFields(ctx, formops.DeleteFieldsRequest{
		FormID:    p.FormID,
		UUIDs:     p.UUIDs,
		Labels:    p.Labels,
		WithGroup: p.WithGroup,
		Flags:     t.flags(p),
	})
}

func (t *TallyTool) handleSyncSelectOptions(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	opts, err := selectOptions(p.Options)
	if err != nil {
		return nil, err
	}
	return t.svc.SyncSelectOptions(ctx, formops.SyncOptionsRequest{
		FormID:         p.FormID,
		Target:         formops.FieldSelector{UUID: p.TargetUUID, Label: p.TargetLabel},
		Options:        opts,
		PreserveExtras: p.PreserveExtras,
		Flags:          t.flags(p),
	})
}

func (t *TallyTool) handleCopyQuestions(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireFields("source_form_id", p.SourceFormID, "dest_form_id", p.DestFormID); err != nil {
		return nil, err
	}
	pos, err := parsePosition(p)
	if err != nil {
		return nil, err
	}
	return t.svc.CopyQuestions(ctx, formops.CopyRequest{
		SourceFormID:    p.SourceFormID,
		DestFormID:      p.DestFormID,
		Groups:          p.Groups,
		BlockUUIDs:      p.BlockUUIDs,
		CopyAll:         p.CopyAll,
		ReplaceContents: p.ReplaceContents,
		SkipTitles:      p.SkipTitles,
		Position:        pos,
		Flags:           t.flags(p),
	})
}

func (t *TallyTool) handleRollbackForm(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	return t.svc.RollbackForm(ctx, formops.RollbackRequest{
		FormID:   p.FormID,
		Backup:   p.BackupJSON,
		Incoming: p.Incoming,
		Flags:    t.flags(p),
	})
}

func (t *TallyTool) handleGetSubmissions(ctx context.Context, p tallyParams) (any, error) {
	if err := RequireField("form_id", p.FormID); err != nil {
		return nil, err
	}
	return t.svc.GetAllSubmissions(ctx, formops.SubmissionsRequest{FormID: p.FormID, Flatten: p.Flatten})
}

func parsePosition(p tallyParams) (domain.Position, error) {
	err := ValidateEnum("position", p.Position,
		string(domain.PositionEnd), string(domain.PositionIndex), string(domain.PositionBefore), string(domain.PositionAfter))
	if err != nil {
		return domain.Position{}, err
	}
	mode := domain.PositionEnd
	if p.Position != "" {
		mode = domain.PositionMode(p.Position)
	}
	if p.Index < 0 {
		return domain.Position{}, domain.NewValidationError("tool.tally", "index must be >= 0")
	}
	return domain.Position{Mode: mode, Index: p.Index, Ref: strings.TrimSpace(p.Ref)}, nil
}

// optionTexts decodes add_field options: any JSON array, each element
// rendered as text. Blank entries are dropped later by the block builder.
func optionTexts(raw json.RawMessage) ([]string, error) {
	var list []any
	if _, err := DecodeJSONParam("Options (JSON)", raw, &list); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(v))
	}
	return out, nil
}

// selectOptions decodes sync_select_options options: objects with label and
// value, or plain strings used as both.
func selectOptions(raw json.RawMessage) ([]domain.SelectOption, error) {
	var list []json.RawMessage
	if _, err := DecodeJSONParam("Options (JSON)", raw, &list); err != nil {
		return nil, err
	}
	out := make([]domain.SelectOption, 0, len(list))
	for i, item := range list {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, domain.SelectOption{Label: s, Value: s})
			continue
		}
		var o domain.SelectOption
		if err := json.Unmarshal(item, &o); err != nil {
			return nil, domain.NewSubSystemError("options", "tool.tally.sync_select_options", domain.ErrInvalidInput,
				fmt.Sprintf("option %d must be a string or an object with label and value", i))
		}
		out = append(out, o)
	}
	return out, nil
}
