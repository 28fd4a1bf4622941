package domain

import "context"

type ctxKey string

const runCtxKey ctxKey = "run_id"

// ContextWithRunID returns a new context carrying the batch run ID (ULID).
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey, runID)
}

// RunIDFromContext extracts the run ID from the context.
// Returns empty string if not set.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runCtxKey).(string); ok {
		return v
	}
	return ""
}
