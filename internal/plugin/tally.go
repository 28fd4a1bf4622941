package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"tally-node/internal/adapter/tally"
	"tally-node/internal/adapter/tool"
	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
	"tally-node/internal/usecase/formops"
)

var _ domain.Plugin = (*TallyPlugin)(nil)

// Settings is the JSON configuration a host passes to the tally plugin.
// Unset fields keep the base configuration.
type Settings struct {
	APIToken          string `json:"api_token"`
	BaseURL           string `json:"base_url,omitempty"`
	GraphQLURL        string `json:"graphql_url,omitempty"`
	RequestsPerMinute *int   `json:"requests_per_minute,omitempty"`

	DryRun     *bool `json:"dry_run,omitempty"`
	Backup     *bool `json:"backup,omitempty"`
	Optimistic *bool `json:"optimistic,omitempty"`
	DiffDepth  *int  `json:"diff_depth,omitempty"`
}

func (s Settings) apply(cfg *config.Config) {
	if s.APIToken != "" {
		cfg.Tally.APIToken = s.APIToken
	}
	if s.BaseURL != "" {
		cfg.Tally.BaseURL = s.BaseURL
		if s.GraphQLURL == "" {
			cfg.Tally.GraphQLURL = s.BaseURL + "/graphql"
		}
	}
	if s.GraphQLURL != "" {
		cfg.Tally.GraphQLURL = s.GraphQLURL
	}
	if s.RequestsPerMinute != nil {
		cfg.Tally.RequestsPerMinute = *s.RequestsPerMinute
	}
	if s.DryRun != nil {
		cfg.Edit.DryRun = *s.DryRun
	}
	if s.Backup != nil {
		cfg.Edit.Backup = *s.Backup
	}
	if s.Optimistic != nil {
		cfg.Edit.Optimistic = *s.Optimistic
	}
	if s.DiffDepth != nil {
		cfg.Edit.DiffDepth = *s.DiffDepth
	}
}

// TallyPlugin exposes the tally tool to a workflow host.
type TallyPlugin struct {
	base       config.Config
	clientOpts []tally.Option
	tool       *tool.TallyTool
}

// NewTallyPlugin creates the plugin. base supplies the settings a host's
// JSON configuration leaves unset; nil means config.Defaults().
func NewTallyPlugin(base *config.Config, opts ...tally.Option) *TallyPlugin {
	if base == nil {
		base = config.Defaults()
	}
	return &TallyPlugin{base: *base, clientOpts: opts}
}

func (p *TallyPlugin) Manifest() domain.PluginManifest { return tallyManifest }

// Init builds the client, the form service and the tool from deps.Config.
func (p *TallyPlugin) Init(_ context.Context, deps domain.PluginDeps) error {
	cfg := p.base

	raw := bytes.TrimSpace(deps.Config)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var s Settings
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.NewDomainError("plugin.Init", domain.ErrConfigLoad, fmt.Sprintf("decode settings: %v", err))
		}
		s.apply(&cfg)
	}
	if err := config.Validate(&cfg); err != nil {
		return domain.NewDomainError("plugin.Init", domain.ErrConfigLoad, err.Error())
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := tally.NewClient(cfg.Tally, logger, p.clientOpts...)
	if err != nil {
		return err
	}
	svc := formops.NewService(client, logger,
		formops.WithDiffDepth(cfg.Edit.DiffDepth),
		formops.WithAudit(deps.Audit),
	)
	p.tool = tool.NewTallyTool(svc, cfg.Edit, logger)
	return nil
}

// Tools returns the tally tool once Init has succeeded.
func (p *TallyPlugin) Tools() []domain.Tool {
	if p.tool == nil {
		return nil
	}
	return []domain.Tool{p.tool}
}

// Close drops the tool. The audit logger belongs to the host.
func (p *TallyPlugin) Close() error {
	p.tool = nil
	return nil
}
