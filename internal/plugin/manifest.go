package plugin

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"tally-node/internal/domain"
)

//go:embed plugin.yaml
var tallyManifestYAML []byte

// ParseManifest decodes a plugin.yaml document. A manifest without a name
// is rejected.
func ParseManifest(data []byte) (domain.PluginManifest, error) {
	var m domain.PluginManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return domain.PluginManifest{}, fmt.Errorf("parse plugin manifest: %w", err)
	}
	if m.Name == "" {
		return domain.PluginManifest{}, fmt.Errorf("parse plugin manifest: %w: name is required", domain.ErrInvalidInput)
	}
	if len(m.Types) == 0 {
		m.Types = []domain.PluginType{domain.PluginTypeTool}
	}
	return m, nil
}

// tallyManifest is the manifest shipped with the binary.
var tallyManifest = mustManifest(tallyManifestYAML)

func mustManifest(data []byte) domain.PluginManifest {
	m, err := ParseManifest(data)
	if err != nil {
		panic(fmt.Sprintf("plugin: embedded manifest: %v", err))
	}
	return m
}
