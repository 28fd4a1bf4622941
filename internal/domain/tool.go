package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the host's parameter resolution: the name,
// a human description, and a JSON Schema for the parameters object.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of executing a tool. Content is the JSON (or
// plain-text) output handed back to the host for one input item.
type ToolResult struct {
	ToolCallID  string `json:"tool_call_id,omitempty"`
	Content     string `json:"content"`
	IsError     bool   `json:"is_error"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
}

// Tool is the interface every host-invocable tool implements.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
