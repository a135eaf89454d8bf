package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"clipforge/internal/config"
	"clipforge/internal/deps"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/pipeline"
	"clipforge/internal/preflight"
	"clipforge/internal/storage"
	"clipforge/internal/workers"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	db          *storage.DB
	coordinator *pipeline.Coordinator
	jobs        *jobqueue.Store
	pool        *workers.Pool
	api         *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Workers      int
	JobCounts    map[jobqueue.State]int
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, db *storage.DB, coordinator *pipeline.Coordinator, jobs *jobqueue.Store, pool *workers.Pool, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || db == nil || coordinator == nil || jobs == nil || pool == nil {
		return nil, errors.New("daemon requires config, database, coordinator, job store, and worker pool")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "clipforged.lock")
	d := &Daemon{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		coordinator: coordinator,
		jobs:        jobs,
		pool:        pool,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, runs preflight, and launches the
// worker pool and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipforge daemon instance is already running")
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg)); len(failed) > 0 {
		_ = d.lock.Unlock()
		return fmt.Errorf("preflight failed: %s", preflight.Summarize(failed))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.pool.Start(d.ctx)

	if err := d.api.start(d.ctx); err != nil {
		d.pool.Stop()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("clipforge daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("clipforge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// APIAddr returns the bound address of the HTTP API, or empty before Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.jobs.Counts(ctx)
	if err != nil {
		d.logger.Warn("job counts", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Workers:      d.cfg.Workers.Count,
		JobCounts:    counts,
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
}
