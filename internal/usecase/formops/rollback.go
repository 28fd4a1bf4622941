package formops

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"tally-node/internal/domain"
)

// CreateNewTarget as the rollback form id creates a new form from the backup.
const CreateNewTarget = "__CREATE_NEW__"

const (
	defaultFormName = "Untitled Form"

	msgNoBackup = "No valid form JSON found. Provide Backup Form JSON or pass it from previous node ($json.backup, $json.form, or $json)."
)

// backupSchema is the minimum a document must satisfy to be replayed: an
// object with a blocks array of objects.
const backupSchema = `{
	"type": "object",
	"required": ["blocks"],
	"properties": {
		"blocks": {"type": "array", "items": {"type": "object"}},
		"name": {"type": ["string", "null"]},
		"settings": {"type": ["object", "null"]}
	}
}`

var (
	compiledBackupSchema *jsonschema.Schema
	backupSchemaErr      error
	backupSchemaOnce     sync.Once
)

func loadBackupSchema() (*jsonschema.Schema, error) {
	backupSchemaOnce.Do(func() {
		compiledBackupSchema, backupSchemaErr = jsonschema.NewCompiler().Compile([]byte(backupSchema))
	})
	return compiledBackupSchema, backupSchemaErr
}

// RollbackRequest restores a form from a backup document.
type RollbackRequest struct {
	// FormID is the form to overwrite, or CreateNewTarget.
	FormID string
	// Backup is an explicit backup document; it may also be a JSON string
	// holding the document. Empty or {} defers to Incoming.
	Backup json.RawMessage
	// Incoming is the output of a previous operation: its backup, then its
	// form, then the item itself are tried.
	Incoming json.RawMessage
	Flags    Flags
}

// IsCreateNew reports whether id asks for a new form.
func IsCreateNew(id string) bool {
	return id == CreateNewTarget || id == "createNew"
}

// RollbackForm writes the backup's blocks back to the form, or creates a new
// form from them.
func (s *Service) RollbackForm(ctx context.Context, req RollbackRequest) (res *EditResult, err error) {
	const op = "rollback_form"
	ctx, end := s.startOp(ctx, op, req.FormID, req.Flags)
	defer end(&err)

	if err := requireFormID(op, req.FormID); err != nil {
		return nil, err
	}
	candidate, err := ResolveBackup(req.Backup, req.Incoming)
	if err != nil {
		return nil, err
	}

	if IsCreateNew(req.FormID) {
		return s.createFromBackup(ctx, candidate, req.Flags)
	}

	before, err := s.fetch(ctx, req.FormID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, edit{
		op:       op,
		formID:   req.FormID,
		before:   before,
		next:     candidate.Blocks,
		flags:    req.Flags,
		name:     candidate.Name,
		settings: candidate.Settings,
	})
}

func (s *Service) createFromBackup(ctx context.Context, candidate *domain.Form, flags Flags) (*EditResult, error) {
	if flags.DryRun {
		return &EditResult{
			Preview:        true,
			CreateNew:      true,
			ProposedBlocks: candidate.Blocks,
			Name:           candidate.Name,
			Settings:       candidate.Settings,
		}, nil
	}

	name := candidate.Name
	if name == "" {
		name = defaultFormName
	}
	settings := candidate.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	created, err := s.api.CreateForm(ctx, domain.FormUpdate{
		Name:     name,
		Settings: settings,
		Blocks:   candidate.Blocks,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("form created", "op", "rollback_form", "form_id", created.ID, "blocks", len(candidate.Blocks))
	s.record(ctx, domain.AuditEvent{
		Type:     domain.AuditFormCreate,
		Resource: created.ID,
		Action:   "rollback_form",
		Outcome:  "success",
		Detail:   map[string]string{"added": strconv.Itoa(len(candidate.Blocks)), "removed": "0", "updated": "0"},
	})
	return &EditResult{Created: true, Form: created}, nil
}

// ResolveBackup picks the backup document: the explicit param when it is a
// non-empty object, else incoming.backup, else incoming.form, else incoming
// itself. The pick must carry a blocks array.
func ResolveBackup(param, incoming json.RawMessage) (*domain.Form, error) {
	const op = "formops.ResolveBackup"

	explicit, err := decodeObjectParam(param)
	if err != nil {
		return nil, domain.NewSubSystemError("backup", op, domain.ErrInvalidInput,
			"Backup Form JSON is not valid JSON: "+err.Error())
	}

	var candidate any
	if len(explicit) > 0 {
		candidate = explicit
	} else {
		var item map[string]any
		if len(bytes.TrimSpace(incoming)) > 0 {
			if err := json.Unmarshal(incoming, &item); err != nil {
				item = nil
			}
		}
		switch {
		case isObject(item["backup"]):
			candidate = item["backup"]
		case isObject(item["form"]):
			candidate = item["form"]
		case item != nil:
			candidate = item
		}
	}
	if candidate == nil {
		return nil, domain.NewSubSystemError("backup", op, domain.ErrInvalidInput, msgNoBackup)
	}

	schema, err := loadBackupSchema()
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	if !schema.Validate(candidate).IsValid() {
		return nil, domain.NewSubSystemError("backup", op, domain.ErrInvalidInput, msgNoBackup)
	}

	raw, err := json.Marshal(candidate)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	var f domain.Form
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, domain.NewSubSystemError("backup", op, domain.ErrInvalidInput, msgNoBackup)
	}
	if f.Blocks == nil {
		f.Blocks = []domain.Block{}
	}
	return &f, nil
}

// decodeObjectParam decodes a JSON-typed parameter that arrives either as an
// object or as a string holding one. Empty input, null, "" and {} all yield
// an empty map.
func decodeObjectParam(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace([]byte(s))) == 0 {
			return nil, nil
		}
		raw = []byte(s)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
