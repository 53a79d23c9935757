// Package daemon runs the scan-and-convert loop and enforces
// single-instance execution through a lock file in the state directory.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"convertd/internal/config"
	"convertd/internal/discovery"
	"convertd/internal/ledger"
	"convertd/internal/pathsafe"
	"convertd/internal/pipeline"
	"convertd/internal/transcode"
	"convertd/internal/transport"
)

const (
	// LockFileName lives in the state directory next to the ledger.
	LockFileName = "convertd.lock"

	// errorCooldown spaces retries after a failed cycle so a dead remote
	// host does not produce a tight reconnect loop.
	errorCooldown = 30 * time.Second

	// sleepSlice bounds how long a shutdown signal waits on a sleeping
	// daemon.
	sleepSlice = time.Second
)

// ErrAlreadyRunning reports that another instance holds the lock file.
var ErrAlreadyRunning = errors.New("another convertd instance is already running")

// Daemon owns the transport, ledger, and pipeline for one process.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	tr        transport.Transport
	store     *ledger.Store
	scanner   *discovery.Scanner
	converter *pipeline.Converter

	lockPath string
	lock     *flock.Flock
	locked   atomic.Bool
	cycles   atomic.Int64
}

// New wires a daemon from validated configuration. Directories are
// created here; the lock is not taken until Run or RunOnce.
func New(cfg *config.Config, logger *slog.Logger, dryRun bool) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := ledger.Open(cfg.Processing.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	var tr transport.Transport
	if cfg.Remote.Enabled {
		tr = transport.NewSFTP(transport.SFTPOptions{
			Host:            cfg.Remote.Host,
			User:            cfg.Remote.User,
			Port:            cfg.Remote.Port,
			KeyFile:         cfg.Remote.KeyFile,
			ConnectTimeout:  time.Duration(cfg.Remote.ConnectTimeout) * time.Second,
			TransferTimeout: time.Duration(cfg.Remote.TransferTimeout) * time.Second,
		}, logger)
	} else {
		tr = transport.NewLocal(logger)
	}

	validator := pathsafe.NewLocal(cfg.Directories)
	converter := pipeline.NewConverter(cfg, tr, store, validator, transcode.NewCLI(), logger, dryRun)
	scanner := discovery.NewScanner(cfg, tr, validator, logger)

	lockPath := filepath.Join(cfg.Processing.StateDir, LockFileName)
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		tr:        tr,
		store:     store,
		scanner:   scanner,
		converter: converter,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// acquireLock takes the instance lock or reports ErrAlreadyRunning.
func (d *Daemon) acquireLock() error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lockPath, err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	d.locked.Store(true)
	return nil
}

// Run executes scan cycles until ctx is cancelled. A failed cycle is
// logged and retried after a cooldown; only lock acquisition is fatal.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acquireLock(); err != nil {
		return err
	}

	d.logger.Info("daemon started",
		"transport", d.tr.Name(),
		"scan_interval", d.cfg.Daemon.ScanInterval,
		"max_workers", d.cfg.Daemon.MaxWorkers,
		"lock", d.lockPath)

	interval := time.Duration(d.cfg.Daemon.ScanInterval) * time.Second
	for {
		pause := interval
		if err := d.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			d.logger.Error("cycle failed", "error", err)
			pause = errorCooldown
		}
		if !d.sleep(ctx, pause) {
			break
		}
	}

	d.logger.Info("daemon stopping", "cycles", d.cycles.Load())
	return nil
}

// RunOnce executes exactly one scan cycle, used by one-shot invocations.
func (d *Daemon) RunOnce(ctx context.Context) error {
	if err := d.acquireLock(); err != nil {
		return err
	}
	return d.cycle(ctx)
}

// cycle scans for candidates and processes the batch. A panic anywhere in
// the cycle is contained here so the daemon loop survives it.
func (d *Daemon) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()

	n := d.cycles.Add(1)
	d.logger.Debug("scan cycle starting", "cycle", n)

	candidates, err := d.scanner.Discover(ctx)
	if err != nil {
		return err
	}
	results := d.converter.ProcessBatch(ctx, candidates)
	if len(results) > 0 {
		d.logger.Info("cycle complete", "cycle", n, "processed", len(results))
	}
	return nil
}

// sleep waits for the interval in one-second slices so cancellation is
// observed promptly. It reports false when ctx ended the wait.
func (d *Daemon) sleep(ctx context.Context, interval time.Duration) bool {
	deadline := time.Now().Add(interval)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := sleepSlice
		if remaining < slice {
			slice = remaining
		}
		timer := time.NewTimer(slice)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// Cycles reports how many scan cycles have started.
func (d *Daemon) Cycles() int64 { return d.cycles.Load() }

// Ledger exposes the processed-file store for status reporting.
func (d *Daemon) Ledger() *ledger.Store { return d.store }

// Close releases the lock and the transport connection.
func (d *Daemon) Close() error {
	var firstErr error
	if d.locked.Load() {
		if err := d.lock.Unlock(); err != nil {
			firstErr = fmt.Errorf("release lock: %w", err)
		}
		d.locked.Store(false)
	}
	if err := d.tr.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close transport: %w", err)
	}
	return firstErr
}
