package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tally-node/internal/adapter/tool"
	"tally-node/internal/domain"
)

// initTimeout bounds a plugin's Init.
const initTimeout = 10 * time.Second

// Manager manages the lifecycle of in-process plugins and publishes their
// tools to a registry.
type Manager struct {
	mu        sync.RWMutex
	plugins   map[string]domain.Plugin
	manifests map[string]domain.PluginManifest
	toolNames map[string][]string
	registry  *tool.Registry
	audit     domain.AuditLogger
	logger    *slog.Logger

	// Permission lists for validation.
	allowPerms []string
	denyPerms  []string
}

// NewManager creates a plugin manager. Loaded plugins get audit as their
// audit logger and register their tools in registry.
func NewManager(logger *slog.Logger, registry *tool.Registry, audit domain.AuditLogger, allowPerms, denyPerms []string) *Manager {
	if audit == nil {
		audit = domain.NopAuditLogger{}
	}
	return &Manager{
		plugins:    make(map[string]domain.Plugin),
		manifests:  make(map[string]domain.PluginManifest),
		toolNames:  make(map[string][]string),
		registry:   registry,
		audit:      audit,
		logger:     logger,
		allowPerms: allowPerms,
		denyPerms:  denyPerms,
	}
}

// Load initialises a plugin with its JSON configuration and registers its tools.
func (m *Manager) Load(ctx context.Context, p domain.Plugin, cfg json.RawMessage) error {
	manifest := p.Manifest()

	if err := ValidatePermissions(manifest, m.allowPerms, m.denyPerms); err != nil {
		return err
	}

	// Pre-check: reject duplicate names before Init.
	m.mu.RLock()
	_, exists := m.plugins[manifest.Name]
	m.mu.RUnlock()
	if exists {
		return domain.NewDomainError("plugin.Load", domain.ErrConflict, "plugin already loaded: "+manifest.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	deps := domain.PluginDeps{
		Logger: m.logger.With("plugin", manifest.Name),
		Audit:  m.audit,
		Config: cfg,
	}
	if err := p.Init(ctx, deps); err != nil {
		return fmt.Errorf("init plugin %q: %w", manifest.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check after Init.
	if _, exists := m.plugins[manifest.Name]; exists {
		_ = p.Close()
		return domain.NewDomainError("plugin.Load", domain.ErrConflict, "plugin already loaded: "+manifest.Name)
	}

	var names []string
	for _, t := range p.Tools() {
		if err := m.registry.Register(t); err != nil {
			for _, n := range names {
				m.registry.Unregister(n)
			}
			_ = p.Close()
			return fmt.Errorf("register tools of plugin %q: %w", manifest.Name, err)
		}
		names = append(names, t.Name())
	}

	m.plugins[manifest.Name] = p
	m.manifests[manifest.Name] = manifest
	m.toolNames[manifest.Name] = names

	m.logger.Info("plugin loaded", "name", manifest.Name, "version", manifest.Version, "tools", names)
	return nil
}

// Unload calls Close on a plugin and removes it and its tools.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plugins[name]
	if !ok {
		return domain.NewDomainError("plugin.Unload", domain.ErrNotFound, name)
	}

	if err := p.Close(); err != nil {
		m.logger.Warn("plugin close error", "name", name, "error", err)
	}
	m.forget(name)

	m.logger.Info("plugin unloaded", "name", name)
	return nil
}

// forget drops a plugin's bookkeeping. Callers hold m.mu.
func (m *Manager) forget(name string) {
	for _, n := range m.toolNames[name] {
		m.registry.Unregister(n)
	}
	delete(m.plugins, name)
	delete(m.manifests, name)
	delete(m.toolNames, name)
}

// List returns the manifests of loaded plugins, sorted by name.
func (m *Manager) List() []domain.PluginManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.PluginManifest, 0, len(m.manifests))
	for _, manifest := range m.manifests {
		result = append(result, manifest)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Shutdown closes all loaded plugins.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.plugins {
		if err := p.Close(); err != nil {
			m.logger.Warn("plugin close error during shutdown", "name", name, "error", err)
		}
		m.forget(name)
	}
}
