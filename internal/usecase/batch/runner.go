// Package batch runs a list of tool invocations one after another under a
// single run id, the way a workflow host feeds input items to a node.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"tally-node/internal/domain"
	"tally-node/internal/infra/tracer"
)

// Item is one tool invocation.
type Item struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
	// Chain passes the previous item's last output record to this item as
	// params.incoming, unless the params already carry one.
	Chain bool `json:"chain,omitempty"`
}

// ItemError is the failure of one item when the run aborts.
type ItemError struct {
	Index int
	Tool  string
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Tool, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Report is the outcome of a run.
type Report struct {
	RunID   string            `json:"runId"`
	Records []json.RawMessage `json:"records"`
	Failed  int               `json:"failed"`
}

// Runner executes items sequentially.
type Runner struct {
	tools          domain.ToolExecutor
	defaultTool    string
	continueOnFail bool
	logger         *slog.Logger
	now            func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithContinueOnFail records {error: message} for a failed item and moves on
// instead of aborting the run.
func WithContinueOnFail(on bool) Option {
	return func(r *Runner) { r.continueOnFail = on }
}

// WithDefaultTool names the tool used for items that leave Tool empty.
func WithDefaultTool(name string) Option {
	return func(r *Runner) { r.defaultTool = name }
}

// NewRunner creates a Runner resolving tools through tools.
func NewRunner(tools domain.ToolExecutor, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Runner{tools: tools, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRunID returns a ULID for a run started at t.
func NewRunID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Run executes items in order. A tool result holding a JSON array yields one
// record per element; any other content yields one record. Without
// continue-on-fail the first failure aborts with an *ItemError and the
// records produced so far.
func (r *Runner) Run(ctx context.Context, items []Item) (*Report, error) {
	runID := domain.RunIDFromContext(ctx)
	if runID == "" {
		runID = NewRunID(r.now())
		ctx = domain.ContextWithRunID(ctx, runID)
	}

	ctx, span := tracer.StartSpan(ctx, "batch.run",
		trace.WithAttributes(
			tracer.StringAttr("batch.run_id", runID),
			tracer.IntAttr("batch.items", len(items)),
		),
	)
	defer span.End()

	report := &Report{RunID: runID, Records: []json.RawMessage{}}
	var last json.RawMessage
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return report, err
		}

		name := item.Tool
		if name == "" {
			name = r.defaultTool
		}
		params := item.Params
		if item.Chain && last != nil {
			params = withIncoming(params, last)
		}

		records, err := r.runItem(ctx, name, params)
		if err != nil {
			r.logger.Warn("batch item failed", "run_id", runID, "item", i, "tool", name, "error", err)
			if !r.continueOnFail {
				tracer.RecordError(span, err)
				return report, &ItemError{Index: i, Tool: name, Err: err}
			}
			report.Failed++
			rec, _ := json.Marshal(map[string]string{"error": domain.UserMessage(err)})
			records = []json.RawMessage{rec}
		}

		report.Records = append(report.Records, records...)
		if len(records) > 0 {
			last = records[len(records)-1]
		}
	}

	r.logger.Info("batch run finished",
		"run_id", runID,
		"items", len(items),
		"records", len(report.Records),
		"failed", report.Failed,
	)
	tracer.SetOK(span)
	return report, nil
}

func (r *Runner) runItem(ctx context.Context, name string, params json.RawMessage) ([]json.RawMessage, error) {
	t, err := r.tools.Get(name)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}
	res, err := t.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	if res.IsError {
		return nil, &ToolError{Message: res.Content, Retryable: res.IsRetryable}
	}
	return splitRecords(res.Content), nil
}

// ToolError is an error result reported by a tool.
type ToolError struct {
	Message   string
	Retryable bool
}

func (e *ToolError) Error() string { return e.Message }

// splitRecords turns tool output into records. Non-JSON output is wrapped as
// {"text": ...}.
func splitRecords(content string) []json.RawMessage {
	raw := bytes.TrimSpace([]byte(content))
	if !json.Valid(raw) {
		rec, _ := json.Marshal(map[string]string{"text": content})
		return []json.RawMessage{rec}
	}
	if len(raw) > 0 && raw[0] == '[' {
		var list []json.RawMessage
		if json.Unmarshal(raw, &list) == nil {
			return list
		}
	}
	return []json.RawMessage{json.RawMessage(raw)}
}

// withIncoming sets params.incoming to prev unless already present. Params
// that are not an object are returned unchanged.
func withIncoming(params, prev json.RawMessage) json.RawMessage {
	obj := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(params)) > 0 {
		if err := json.Unmarshal(params, &obj); err != nil || obj == nil {
			return params
		}
	}
	if _, ok := obj["incoming"]; ok {
		return params
	}
	obj["incoming"] = prev
	out, err := json.Marshal(obj)
	if err != nil {
		return params
	}
	return out
}

// LoadItems decodes a run file: a JSON array of items.
func LoadItems(r io.Reader) ([]Item, error) {
	var items []Item
	dec := json.NewDecoder(r)
	if err := dec.Decode(&items); err != nil {
		return nil, domain.NewDomainError("batch.LoadItems", domain.ErrInvalidInput, "items must be a JSON array: "+err.Error())
	}
	return items, nil
}
