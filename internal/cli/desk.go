package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/frontdesk/internal/config"
	"github.com/roach88/frontdesk/internal/fsutil"
	"github.com/roach88/frontdesk/internal/mirror"
	"github.com/roach88/frontdesk/internal/outbox"
	"github.com/roach88/frontdesk/internal/recordlog"
	"github.com/roach88/frontdesk/internal/registry"
)

// desk bundles what a command needs: configuration, logger, the registry and,
// when mirroring is on, the outbox and its dispatcher.
type desk struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *registry.Service
	outbox     *outbox.Outbox
	dispatcher *mirror.Dispatcher
}

// loadConfig reads the config and builds the logger. Diagnostic output goes
// to the command's stderr so JSON on stdout stays clean.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, newLogger(cfg, opts.Verbose, cmd.ErrOrStderr()), nil
}

func newLogger(cfg *config.Config, verbose bool, w io.Writer) *slog.Logger {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openDesk opens the registry and, if withMirror, the outbox.
func openDesk(ctx context.Context, opts *RootOptions, cmd *cobra.Command, withMirror bool) (*desk, error) {
	cfg, logger, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}
	policy, err := recordlog.ParseLoadPolicy(cfg.Data.LoadPolicy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid load policy", err)
	}

	logger.Debug("opening registry", "dir", cfg.Data.Dir, "policy", policy.String(), "timezone", loc.String())
	svc, err := registry.Open(ctx, registry.Options{
		Dir:        cfg.Data.Dir,
		LogFile:    cfg.Data.LogFile,
		IDFile:     cfg.Data.IDFile,
		TurnFile:   cfg.Data.TurnFile,
		LoadPolicy: policy,
		Location:   loc,
		Clock:      opts.Clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open registry", err)
	}
	d := &desk{cfg: cfg, logger: logger, registry: svc}
	reportStartup(logger, svc.Startup())

	if withMirror && !cfg.Mirror.Disabled {
		if err := d.openMirror(); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

// openMirrorDesk opens only the outbox and its dispatcher. It does not take
// the data directory lock, so it can run next to a registering process.
func openMirrorDesk(opts *RootOptions, cmd *cobra.Command) (*desk, error) {
	cfg, logger, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Mirror.Disabled {
		return nil, NewExitError(ExitCommandError, "mirror is disabled in the configuration")
	}

	d := &desk{cfg: cfg, logger: logger}
	if err := d.openMirror(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *desk) openMirror() error {
	path := d.cfg.OutboxPath()
	if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return WrapExitError(ExitCommandError, "failed to create outbox directory", err)
	}
	d.logger.Debug("opening outbox", "path", path)
	ob, err := outbox.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open outbox", err)
	}
	d.outbox = ob

	var sink mirror.Sink = mirror.LogSink{Logger: d.logger}
	if d.cfg.Mirror.URL != "" {
		sink = mirror.NewWebhookSink(d.cfg.Mirror.URL, d.cfg.Mirror.Sheet, d.cfg.Mirror.Timeout)
	}
	d.dispatcher = mirror.NewDispatcher(ob, sink, mirror.Config{
		BatchSize:   d.cfg.Mirror.BatchSize,
		SendTimeout: d.cfg.Mirror.Timeout,
		Interval:    d.cfg.Mirror.Interval,
		MaxBackoff:  d.cfg.Mirror.MaxBackoff,
	}, d.logger)
	return nil
}

// Close releases the outbox and the data directory lock.
func (d *desk) Close() error {
	var errs []error
	if d.outbox != nil {
		errs = append(errs, d.outbox.Close())
	}
	if d.registry != nil {
		errs = append(errs, d.registry.Close())
	}
	return errors.Join(errs...)
}

func reportStartup(logger *slog.Logger, rep registry.StartupReport) {
	for _, c := range rep.CorruptCounter {
		logger.Warn("counter file unreadable, rebuilt from log", "path", c.Path, "error", c.Err)
	}
	for _, c := range rep.SkippedLines {
		logger.Warn("skipped corrupt log line", "path", c.Path, "line", c.Line, "error", c.Err)
	}
	if rep.TornTail != "" {
		logger.Warn("ignored incomplete last log line", "raw", rep.TornTail)
	}
	if rep.Reconcile.Changed {
		logger.Info("counters raised to match log",
			"last_id", rep.Reconcile.After.LastID,
			"last_turn", rep.Reconcile.After.LastTurn,
			"last_turn_date", rep.Reconcile.After.LastTurnDate,
		)
	}
}

// registryExitError maps registry errors to exit codes. Bad input is a
// failure; anything about the data directory is a command error.
func registryExitError(msg string, err error) *ExitError {
	if registry.IsValidation(err) {
		return WrapExitError(ExitFailure, msg, err)
	}
	return WrapExitError(ExitCommandError, msg, err)
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func closeDesk(d *desk) {
	if err := d.Close(); err != nil {
		d.logger.Error("error closing desk", "error", err)
	}
}
