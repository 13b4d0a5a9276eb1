package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ledgerbak/internal/backup"
	"ledgerbak/internal/config"
	"ledgerbak/internal/encryption"
	"ledgerbak/internal/fs"
	"ledgerbak/internal/history"
	"ledgerbak/internal/httpserver"
	"ledgerbak/internal/metrics"
	"ledgerbak/internal/schedule"
	"ledgerbak/internal/snapshot"
	"ledgerbak/internal/storage"
	"ledgerbak/internal/watch"
)

// DefaultStopTimeout bounds how long Run waits for the worker after a
// shutdown signal.
const DefaultStopTimeout = 30 * time.Second

// Options tune App construction. The zero value logs at info level to the
// log file only.
type Options struct {
	Console io.Writer
	Verbose bool
}

// App is the application layer between the CLI and backup.Service. It
// builds every dependency from config and owns their lifecycle.
type App struct {
	cfg         *config.Config
	logger      backup.Logger
	logFile     *os.File
	resources   []string
	provider    backup.StorageProvider
	closers     []io.Closer
	snapshotter *snapshot.SQLiteSnapshotter
	history     *history.Store
	service     *backup.Service
	stopTimeout time.Duration
}

// New creates a fully wired App from cfg. Configuration problems wrap
// backup.ErrConfiguration. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", backup.ErrConfiguration, err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	instanceID := time.Now().UTC().Format("20060102T150405Z")
	sl, logFile, err := newLogger(cfg.LogDir, instanceID, level, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &App{
		cfg:         cfg,
		logger:      &slogAdapter{l: sl},
		logFile:     logFile,
		stopTimeout: DefaultStopTimeout,
	}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	if a.resources, err = fs.ResolveAll(cfg.Backup.Resources); err != nil {
		return nil, fmt.Errorf("%w: resources: %w", backup.ErrConfiguration, err)
	}

	provider, err := storage.NewProviderFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if c, ok := provider.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	if fp, ok := provider.(*storage.FileProvider); ok && fp.Root() == "" {
		a.logger.Warn("file storage has no root directory; snapshots will be discarded")
	}
	if strings.EqualFold(cfg.Storage.Type, "sftp") && cfg.Storage.KnownHostsPath == "" {
		a.logger.Warn("sftp host key is not verified; set known_hosts_path", "host", cfg.Storage.Host)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backup.ErrConfiguration, err)
	}
	if enc != nil {
		provider = storage.NewEncryptingProvider(provider, enc)
	}
	a.provider = provider

	method, err := snapshot.ParseMethod(cfg.Backup.SnapshotMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backup.ErrConfiguration, err)
	}
	clock := backup.RealClock{}
	a.snapshotter = snapshot.NewSQLiteSnapshotter(cfg.WorkDir, method, clock)

	if a.history, err = history.NewStoreFromConfig(cfg.History); err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	var recorder backup.Recorder
	if a.history != nil {
		recorder = a.history
		a.logger.Debug("history enabled", "path", a.history.Path())
	}

	poll, err := cfg.Backup.PollIntervalDuration()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backup.ErrConfiguration, err)
	}

	a.service = backup.NewService(backup.NewQueue(clock), a.snapshotter, a.provider, recorder, a.logger, clock, backup.UUIDGenerator{}, poll)
	metrics.SetInfo(strings.ToLower(cfg.Storage.Type), string(method))
	built = true
	return a, nil
}

// Service returns the backup service.
func (a *App) Service() *backup.Service {
	return a.service
}

// Resources returns the resolved resource paths from config.
func (a *App) Resources() []string {
	return append([]string(nil), a.resources...)
}

// Run starts the worker and the configured producers (watcher, scheduler,
// HTTP server) and blocks until ctx is cancelled or a producer fails. The
// worker is then stopped; pending requests are discarded.
func (a *App) Run(ctx context.Context) error {
	var runners []func(context.Context) error

	if a.cfg.Backup.Schedule != "" {
		s, err := schedule.New(a.cfg.Backup.Schedule, a.resources, a.service, a.logger)
		if err != nil {
			return err
		}
		runners = append(runners, s.Run)
	}
	if a.cfg.Server.Listen != "" {
		srv := httpserver.NewServer(a.cfg.Server.Listen, a.service, a.resources, a.cfg.Server.RestrictPaths, a.logger)
		runners = append(runners, srv.Run)
	}
	var debounce time.Duration
	if a.cfg.Backup.Watch {
		var err error
		if debounce, err = a.cfg.Backup.DebounceDuration(); err != nil {
			return fmt.Errorf("%w: %w", backup.ErrConfiguration, err)
		}
	}

	if err := a.service.Start(ctx); err != nil {
		return err
	}
	// The watcher holds OS resources from New on, so it is built only once
	// the service is running.
	if a.cfg.Backup.Watch {
		w, err := watch.New(a.resources, debounce, a.service, a.logger)
		if err != nil {
			return errors.Join(fmt.Errorf("starting watcher: %w", err), a.stop(ctx))
		}
		runners = append(runners, w.Run)
	}
	a.logger.Info("ledgerbak running", "resources", len(a.resources), "storage", a.cfg.Storage.Type)

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	if err := a.stop(ctx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// stop stops the service within the configured timeout, even when ctx is
// already cancelled.
func (a *App) stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.stopTimeout)
	defer cancel()
	return a.service.Stop(stopCtx)
}

// BackupNow snapshots and stores each path (or every configured resource
// when paths is empty) synchronously, in order.
func (a *App) BackupNow(ctx context.Context, paths []string) ([]*backup.Cycle, error) {
	targets := a.resources
	if len(paths) > 0 {
		var err error
		if targets, err = fs.ResolveAll(paths); err != nil {
			return nil, err
		}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no resources to back up")
	}

	for _, p := range targets {
		a.service.Notify(p)
	}
	return a.service.Drain(ctx)
}

// History returns the most recent cycles, newest first.
func (a *App) History(ctx context.Context, limit int) ([]*backup.Cycle, error) {
	if a.history == nil {
		return nil, fmt.Errorf("history is disabled")
	}
	return a.history.ListCycles(ctx, limit)
}

// CheckResult is the outcome of one Check probe.
type CheckResult struct {
	Name string
	Err  error
}

// Check probes storage, every resource and the history schema. It returns
// one result per probe; callers decide how to report failures.
func (a *App) Check(ctx context.Context) []CheckResult {
	results := []CheckResult{{
		Name: "storage " + a.cfg.Storage.Type,
		Err:  a.provider.ValidateSetup(ctx),
	}}
	for _, r := range a.resources {
		results = append(results, CheckResult{Name: "resource " + r, Err: fs.Check(r)})
	}
	if a.history != nil {
		results = append(results, CheckResult{Name: "history", Err: a.history.CheckStatus()})
	}
	return results
}

// Close releases storage clients, the history database and the log file.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing history: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
