package domain

import (
	"context"
	"encoding/json"
	"log/slog"
)

// PluginType classifies what a plugin provides.
type PluginType string

const (
	PluginTypeTool PluginType = "tool"
)

// PluginManifest describes a plugin's identity and capabilities.
type PluginManifest struct {
	Name        string       `json:"name"        yaml:"name"`
	Version     string       `json:"version"     yaml:"version"`
	Description string       `json:"description" yaml:"description"`
	Author      string       `json:"author"      yaml:"author"`
	Types       []PluginType `json:"types"       yaml:"types"`
	Permissions []string     `json:"permissions" yaml:"permissions"`
}

// Plugin is the interface a workflow host loads. The host injects logging,
// auditing and the plugin's JSON configuration (credentials included).
type Plugin interface {
	Manifest() PluginManifest
	Init(ctx context.Context, deps PluginDeps) error
	Tools() []Tool
	Close() error
}

// PluginDeps are dependencies injected into a plugin during Init.
type PluginDeps struct {
	Logger *slog.Logger
	Audit  AuditLogger
	Config json.RawMessage
}
