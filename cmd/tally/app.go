package main

import (
	"context"
	"errors"
	"log/slog"

	"tally-node/internal/adapter/tool"
	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
	"tally-node/internal/infra/logger"
	"tally-node/internal/infra/tracer"
	"tally-node/internal/plugin"
	"tally-node/internal/security"
	"tally-node/internal/usecase/batch"
)

// app is the wired host: config, logging, tracing, audit, the tally plugin
// and the batch runner.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *tool.Registry
	plugins  *plugin.Manager
	closers  []func(context.Context) error
}

// newApp loads the configuration and the tally plugin.
func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: string(domain.CodeConfigLoad), Message: "load config", Err: err}
	}
	if opts.Verbose {
		cfg.Logger.Level = "debug"
	}

	a := &app{cfg: cfg}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, commandError("set up logging", err)
	}
	a.logger = log
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close(ctx)
		return nil, commandError("set up tracing", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	audit, err := security.NewFromConfig(ctx, cfg.Audit)
	if err != nil {
		a.close(ctx)
		return nil, commandError("open audit log", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return audit.Close() })

	a.registry = tool.NewRegistry(log)
	a.plugins = plugin.NewManager(log, a.registry, audit, []string{plugin.PermNetwork, plugin.PermAudit}, nil)
	if err := a.plugins.Load(ctx, plugin.NewTallyPlugin(cfg), nil); err != nil {
		a.close(ctx)
		return nil, &ExitError{Code: ExitCommandError, ErrCode: string(domain.ErrorCodeOf(err)), Message: "load tally plugin", Err: err}
	}
	a.closers = append(a.closers, func(context.Context) error { a.plugins.Shutdown(); return nil })

	return a, nil
}

// runner returns a batch runner over the loaded tools. continueOnFail
// overrides the configured default when set.
func (a *app) runner(continueOnFail *bool) *batch.Runner {
	cont := a.cfg.Batch.ContinueOnFail
	if continueOnFail != nil {
		cont = *continueOnFail
	}
	return batch.NewRunner(a.registry, a.logger,
		batch.WithDefaultTool("tally"),
		batch.WithContinueOnFail(cont),
	)
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
