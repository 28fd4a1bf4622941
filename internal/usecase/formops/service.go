// Package formops orchestrates edits of remote Tally forms: fetch the form,
// compute the next block sequence with the blocks package, preview or verify,
// then commit through the API.
package formops

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"tally-node/internal/domain"
	"tally-node/internal/infra/tracer"
	"tally-node/internal/usecase/blocks"
)

// FormAPI is the subset of the Tally client the orchestrator needs.
type FormAPI interface {
	ListForms(ctx context.Context) ([]domain.Form, error)
	GetForm(ctx context.Context, formID string) (*domain.Form, error)
	UpdateForm(ctx context.Context, formID string, update domain.FormUpdate) (*domain.Form, error)
	CreateForm(ctx context.Context, create domain.FormUpdate) (*domain.Form, error)
	ListQuestions(ctx context.Context, formID string) ([]domain.Question, error)
	ListSubmissions(ctx context.Context, formID string) (json.RawMessage, error)
}

// Flags control the write protocol of every editing operation.
type Flags struct {
	DryRun     bool `json:"dryRun"`
	Backup     bool `json:"backup"`
	Optimistic bool `json:"optimistic"`
}

// DefaultFlags are the flags used when a caller sets none: commit, return a
// backup, and check for concurrent modification.
func DefaultFlags() Flags {
	return Flags{DryRun: false, Backup: true, Optimistic: true}
}

// Service runs form operations against a FormAPI.
type Service struct {
	api       FormAPI
	audit     domain.AuditLogger
	logger    *slog.Logger
	diffDepth int
}

// Option customizes a Service.
type Option func(*Service)

// WithDiffDepth sets how deep payload changes are itemized in diffs.
func WithDiffDepth(depth int) Option {
	return func(s *Service) { s.diffDepth = depth }
}

// WithAudit sets the audit logger committed writes are recorded to.
func WithAudit(a domain.AuditLogger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// NewService creates a Service.
func NewService(api FormAPI, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		api:       api,
		audit:     domain.NopAuditLogger{},
		logger:    logger,
		diffDepth: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EditResult is the outcome of an editing operation: a preview (dry run), an
// update, or a creation.
type EditResult struct {
	Preview        bool
	FormID         string
	DestFormID     string // copy operations
	CreateNew      bool
	ProposedBlocks []domain.Block
	Diff           []domain.BlockChange
	Name           string         // create-new preview
	Settings       map[string]any // create-new preview

	Updated bool
	Created bool
	Form    *domain.Form
	Backup  *domain.Form
}

// Summary counts the changes of a preview.
func (r *EditResult) Summary() domain.ChangeSummary {
	return domain.Summarize(r.Diff)
}

// MarshalJSON renders the result in its output shape:
// {preview, formId, proposedBlocks, diff} for previews,
// {updated, form, backup?} for updates and {created, form} for creations.
func (r EditResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 6)
	switch {
	case r.Preview:
		out["preview"] = true
		if r.CreateNew {
			out["createNew"] = true
			if r.Name != "" {
				out["name"] = r.Name
			}
			if r.Settings != nil {
				out["settings"] = r.Settings
			}
		} else {
			if r.DestFormID != "" {
				out["destFormId"] = r.DestFormID
			}
			out["formId"] = r.FormID
			diff := r.Diff
			if diff == nil {
				diff = []domain.BlockChange{}
			}
			out["diff"] = diff
		}
		proposed := r.ProposedBlocks
		if proposed == nil {
			proposed = []domain.Block{}
		}
		out["proposedBlocks"] = proposed
	case r.Created:
		out["created"] = true
		out["form"] = r.Form
	default:
		out["updated"] = r.Updated
		out["form"] = r.Form
		if r.Backup != nil {
			out["backup"] = r.Backup
		}
	}
	return json.Marshal(out)
}

// Conflict messages reported when the form moved between read and write.
const (
	msgConflict     = "Form changed since read. Re-run to avoid conflicts."
	msgDestConflict = "Destination form changed since read. Re-run to avoid conflicts."
)

// edit is one computed change waiting for the write protocol.
type edit struct {
	op          string
	formID      string
	before      *domain.Form
	next        []domain.Block
	flags       Flags
	conflictMsg string
	destForm    bool

	// name and settings override the before values when set.
	name     string
	settings map[string]any
}

// apply runs the write protocol: preview on dry run, otherwise verify the
// form is unchanged (when optimistic) and PATCH the new blocks.
func (s *Service) apply(ctx context.Context, e edit) (*EditResult, error) {
	diff := blocks.DiffBlocks(e.before.Blocks, e.next, blocks.DiffOptions{Depth: s.diffDepth})

	if e.flags.DryRun {
		res := &EditResult{
			Preview:        true,
			FormID:         e.formID,
			ProposedBlocks: e.next,
			Diff:           diff,
		}
		if e.destForm {
			res.DestFormID = e.formID
		}
		sum := res.Summary()
		s.logger.Debug("edit preview",
			"op", e.op,
			"form_id", e.formID,
			"added", sum.Added,
			"removed", sum.Removed,
			"updated", sum.Updated,
		)
		return res, nil
	}

	if e.flags.Optimistic {
		// Best effort: the form can still change between this read and the
		// PATCH below. The API offers no conditional write to close the gap.
		latest, err := s.api.GetForm(ctx, e.formID)
		if err != nil {
			return nil, err
		}
		if latest.UpdatedAt != e.before.UpdatedAt {
			msg := e.conflictMsg
			if msg == "" {
				msg = msgConflict
			}
			s.record(ctx, domain.AuditEvent{
				Type:     domain.AuditConflict,
				Resource: e.formID,
				Action:   e.op,
				Outcome:  "refused",
				Detail: map[string]string{
					"read_updated_at":   e.before.UpdatedAt,
					"latest_updated_at": latest.UpdatedAt,
				},
			})
			return nil, domain.NewConflictError("formops."+e.op, msg)
		}
	}

	name := e.name
	if name == "" {
		name = e.before.Name
	}
	settings := e.settings
	if settings == nil {
		settings = e.before.Settings
	}
	resp, err := s.api.UpdateForm(ctx, e.formID, domain.FormUpdate{
		Blocks:   e.next,
		Name:     name,
		Settings: settings,
	})
	if err != nil {
		return nil, err
	}

	sum := domain.Summarize(diff)
	s.logger.Info("form updated",
		"op", e.op,
		"form_id", e.formID,
		"added", sum.Added,
		"removed", sum.Removed,
		"updated", sum.Updated,
	)
	s.record(ctx, domain.AuditEvent{
		Type:     domain.AuditFormUpdate,
		Resource: e.formID,
		Action:   e.op,
		Outcome:  "success",
		Detail:   summaryDetail(sum),
	})

	res := &EditResult{Updated: true, Form: resp}
	if e.flags.Backup {
		res.Backup = e.before
	}
	return res, nil
}

// record writes an audit event. Audit failures are logged, not returned: the
// remote write has already happened.
func (s *Service) record(ctx context.Context, event domain.AuditEvent) {
	if runID := domain.RunIDFromContext(ctx); runID != "" {
		if event.Detail == nil {
			event.Detail = make(map[string]string, 1)
		}
		event.Detail["run_id"] = runID
		event.Actor = runID
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("audit log write failed", "type", event.Type, "error", err)
	}
}

func summaryDetail(sum domain.ChangeSummary) map[string]string {
	return map[string]string{
		"added":   strconv.Itoa(sum.Added),
		"removed": strconv.Itoa(sum.Removed),
		"updated": strconv.Itoa(sum.Updated),
	}
}

// startOp opens the span of one operation. The returned func ends it and
// records the final error, if any.
func (s *Service) startOp(ctx context.Context, op, formID string, flags Flags) (context.Context, func(*error)) {
	ctx, span := tracer.StartSpan(ctx, "formops."+op,
		trace.WithAttributes(
			tracer.StringAttr("tally.form_id", formID),
			tracer.BoolAttr("edit.dry_run", flags.DryRun),
			tracer.BoolAttr("edit.optimistic", flags.Optimistic),
		),
	)
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			tracer.RecordError(span, *errp)
		} else {
			tracer.SetOK(span)
		}
		span.End()
	}
}

// fetch gets a form, treating a missing blocks array as empty.
func (s *Service) fetch(ctx context.Context, formID string) (*domain.Form, error) {
	f, err := s.api.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if f.Blocks == nil {
		f.Blocks = []domain.Block{}
	}
	s.logger.Debug("form fetched", "form_id", formID, "blocks", len(f.Blocks), "updated_at", f.UpdatedAt)
	return f, nil
}

// checkPosition validates pos and warns when a relative reference is not in
// seq; such inserts fall back to appending.
func (s *Service) checkPosition(op string, seq []domain.Block, pos domain.Position) {
	if _, found := blocks.ResolveInsertion(seq, pos); !found {
		s.logger.Warn("position reference not found, appending",
			"op", op,
			"mode", string(pos.Mode),
			"ref", pos.Ref,
		)
	}
}

func requireFormID(op, formID string) error {
	if formID == "" {
		return domain.NewSubSystemError("form", "formops."+op, domain.ErrInvalidInput, "Form ID is required")
	}
	return nil
}

func validatePosition(op string, pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return domain.NewValidationError("formops."+op, err.Error())
	}
	return nil
}
