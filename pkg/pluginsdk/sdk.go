// Package pluginsdk provides types and helpers for tally-node hosts and
// plugin developers.
//
// NOTE: This package imports internal/domain via type aliases. It is usable by
// hosts and plugins that live inside the tally-node module.
//
// Example:
//
//	p := pluginsdk.NewTallyPlugin()
//	err := p.Init(ctx, pluginsdk.PluginDeps{
//	    Logger: logger,
//	    Config: json.RawMessage(`{"api_token":"tly-..."}`),
//	})
//	res, err := p.Tools()[0].Execute(ctx, json.RawMessage(`{"action":"get_forms"}`))
package pluginsdk

import (
	"context"

	"tally-node/internal/domain"
	"tally-node/internal/plugin"
)

// Re-exported domain types for hosts and plugin developers.
type (
	Plugin         = domain.Plugin
	PluginManifest = domain.PluginManifest
	PluginDeps     = domain.PluginDeps
	PluginType     = domain.PluginType
	Tool           = domain.Tool
	ToolSchema     = domain.ToolSchema
	ToolResult     = domain.ToolResult
	AuditLogger    = domain.AuditLogger
	AuditEvent     = domain.AuditEvent
	ErrorCode      = domain.ErrorCode

	// TallySettings is the JSON configuration of the tally plugin.
	TallySettings = plugin.Settings
)

// Re-exported plugin type constants.
const (
	TypeTool = domain.PluginTypeTool
)

// NewTallyPlugin creates the tally plugin with default base settings.
func NewTallyPlugin() Plugin {
	return plugin.NewTallyPlugin(nil)
}

// ErrorCodeOf returns the machine-parseable code of an error returned by a plugin.
func ErrorCodeOf(err error) ErrorCode { return domain.ErrorCodeOf(err) }

// BasePlugin provides default no-op implementations for the Plugin interface.
// Embed this in your plugin struct to only override the methods you need.
type BasePlugin struct {
	manifest PluginManifest
}

// NewBasePlugin creates a BasePlugin with the given manifest.
func NewBasePlugin(m PluginManifest) BasePlugin {
	return BasePlugin{manifest: m}
}

func (b BasePlugin) Manifest() PluginManifest                   { return b.manifest }
func (b BasePlugin) Init(_ context.Context, _ PluginDeps) error { return nil }
func (b BasePlugin) Tools() []Tool                              { return nil }
func (b BasePlugin) Close() error                               { return nil }
