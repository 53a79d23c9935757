// Package pipeline decides which discovered candidates need conversion
// and drives each one through download, transcode, verification, publish,
// and ledger commit, with cleanup on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"convertd/internal/config"
	"convertd/internal/diskspace"
	"convertd/internal/identity"
	"convertd/internal/ledger"
	"convertd/internal/pathsafe"
	"convertd/internal/transport"
)

// maxInputBytes rejects absurdly large candidates before any work starts;
// a resource-exhaustion guard, not a format judgment.
const maxInputBytes int64 = 50 << 30

// Transcoder runs one external transcode from inputPath to outputPath.
type Transcoder interface {
	Run(ctx context.Context, conv config.Conversion, inputPath, outputPath string) error
}

// Outcome classifies one conversion attempt.
type Outcome int

const (
	// OutcomeSucceeded covers real conversions and dry-run simulations.
	OutcomeSucceeded Outcome = iota
	// OutcomeFailed leaves the candidate eligible for the next cycle.
	OutcomeFailed
	// OutcomeSkipped means another worker already held the claim.
	OutcomeSkipped
)

// Result is the tagged outcome of one attempt. Expected failure modes are
// values here, never panics escaping the pipeline.
type Result struct {
	Path     string
	Outcome  Outcome
	Reason   string
	Duration time.Duration
}

// Converter orchestrates the per-candidate pipeline.
type Converter struct {
	cfg        *config.Config
	tr         transport.Transport
	store      *ledger.Store
	inflight   *InFlight
	validator  *pathsafe.Local
	transcoder Transcoder
	logger     *slog.Logger
	dryRun     bool

	// freeSpace is swapped in tests.
	freeSpace func(string) (uint64, error)
}

// NewConverter wires the pipeline. validator must be non-nil in local mode
// and is ignored in remote mode, where prefix validation already happened
// at discovery.
func NewConverter(cfg *config.Config, tr transport.Transport, store *ledger.Store, validator *pathsafe.Local, transcoder Transcoder, logger *slog.Logger, dryRun bool) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		cfg:        cfg,
		tr:         tr,
		store:      store,
		inflight:   NewInFlight(),
		validator:  validator,
		transcoder: transcoder,
		logger:     logger,
		dryRun:     dryRun,
		freeSpace:  diskspace.Free,
	}
}

// InFlightLen exposes the current claim count for status reporting.
func (c *Converter) InFlightLen() int { return c.inflight.Len() }

// Eligible applies the short-circuit checks, cheapest first. Every check
// is evaluated fresh per cycle; nothing here is cached except through the
// ledger itself. Stat problems fail closed.
func (c *Converter) Eligible(ctx context.Context, sourcePath string) bool {
	id := identity.ForPath(sourcePath)
	if c.store.Contains(id) {
		return false
	}
	if c.inflight.Contains(id) {
		return false
	}
	if strings.EqualFold(extOf(sourcePath, c.remote()), c.cfg.OutputExtension()) {
		return false
	}
	outputPath := c.outputPath(sourcePath)
	if outputPath != sourcePath && c.tr.Exists(ctx, outputPath) {
		return false
	}

	size, _, err := c.tr.Stat(ctx, sourcePath)
	if err != nil {
		c.logger.Warn("cannot stat candidate, skipping", "path", sourcePath, "error", err)
		return false
	}
	if size == 0 {
		c.logger.Debug("skipping empty file", "path", sourcePath)
		return false
	}
	if size > maxInputBytes {
		c.logger.Warn("candidate exceeds size bound, skipping",
			"path", sourcePath,
			"size", humanize.Bytes(uint64(size)),
			"limit", humanize.Bytes(uint64(maxInputBytes)))
		return false
	}
	return true
}

// Convert runs the full state machine for one candidate. It never lets a
// panic escape: anything unexpected becomes a Failed result.
func (c *Converter) Convert(ctx context.Context, sourcePath string) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("conversion panicked", "path", sourcePath, "panic", r)
			result = Result{
				Path:     sourcePath,
				Outcome:  OutcomeFailed,
				Reason:   fmt.Sprintf("internal error: %v", r),
				Duration: time.Since(start),
			}
		}
	}()

	id := identity.ForPath(sourcePath)
	if !c.inflight.TryClaim(id) {
		return Result{Path: sourcePath, Outcome: OutcomeSkipped, Reason: "already converting"}
	}
	defer c.inflight.Release(id)

	if c.dryRun {
		return c.simulate(id, sourcePath, start)
	}

	workInput := filepath.Join(c.cfg.Processing.WorkDir, id.String()+"-input"+extOf(sourcePath, c.remote()))
	workOutput := filepath.Join(c.cfg.Processing.WorkDir, id.String()+"-output"+c.cfg.OutputExtension())
	defer func() {
		os.Remove(workOutput)
		if c.remote() {
			os.Remove(workInput)
		}
	}()

	c.logger.Info("starting conversion", "path", sourcePath, "id", id.Short())

	var input string
	var sourceMtime time.Time
	if c.remote() {
		_, mtime, err := c.tr.Stat(ctx, sourcePath)
		if err != nil {
			return c.failed(sourcePath, start, fmt.Sprintf("stat source: %v", err))
		}
		sourceMtime = mtime
		if err := c.tr.Fetch(ctx, sourcePath, workInput); err != nil {
			return c.failed(sourcePath, start, fmt.Sprintf("download: %v", err))
		}
		input = workInput
	} else {
		info, err := os.Stat(sourcePath)
		if err != nil {
			return c.failed(sourcePath, start, fmt.Sprintf("source vanished: %v", err))
		}
		if !info.Mode().IsRegular() {
			return c.failed(sourcePath, start, "source is not a regular file")
		}
		// Second safety check, immediately before the transcoder touches
		// the path. A symlink swapped in since discovery fails here.
		if !c.validator.Check(sourcePath) {
			return c.failed(sourcePath, start, "path failed safety re-validation")
		}
		sourceMtime = info.ModTime()
		if reason := c.checkFreeSpace(sourcePath); reason != "" {
			return c.failed(sourcePath, start, reason)
		}
		input = sourcePath
	}

	if err := c.transcoder.Run(ctx, c.cfg.Conversion, input, workOutput); err != nil {
		return c.failed(sourcePath, start, fmt.Sprintf("transcode: %v", err))
	}
	outInfo, err := os.Stat(workOutput)
	if err != nil {
		return c.failed(sourcePath, start, fmt.Sprintf("output missing: %v", err))
	}
	if !outInfo.Mode().IsRegular() {
		return c.failed(sourcePath, start, "output is not a regular file")
	}

	finalPath := c.outputPath(sourcePath)
	if err := c.tr.Publish(ctx, workOutput, finalPath); err != nil {
		return c.failed(sourcePath, start, fmt.Sprintf("publish: %v", err))
	}
	if err := c.tr.SetTimes(ctx, finalPath, sourceMtime, sourceMtime); err != nil {
		c.logger.Warn("could not preserve timestamps", "path", finalPath, "error", err)
	}
	if !c.cfg.Processing.KeepOriginal {
		if err := c.tr.Delete(ctx, sourcePath); err != nil {
			c.logger.Warn("could not delete original", "path", sourcePath, "error", err)
		}
	}

	elapsed := time.Since(start)
	entry := ledger.Entry{Timestamp: start.Unix(), DurationSeconds: int64(elapsed.Seconds())}
	if err := c.store.Record(id, entry); err != nil {
		return c.failed(sourcePath, start, fmt.Sprintf("ledger commit: %v", err))
	}

	return Result{Path: sourcePath, Outcome: OutcomeSucceeded, Duration: elapsed}
}

func (c *Converter) simulate(id identity.Identity, sourcePath string, start time.Time) Result {
	c.logger.Info("dry run, would convert", "path", sourcePath, "output", c.outputPath(sourcePath))
	entry := ledger.Entry{Timestamp: start.Unix(), DryRun: true}
	if err := c.store.Record(id, entry); err != nil {
		return c.failed(sourcePath, start, fmt.Sprintf("ledger commit: %v", err))
	}
	return Result{Path: sourcePath, Outcome: OutcomeSucceeded, Reason: "dry run", Duration: time.Since(start)}
}

func (c *Converter) failed(sourcePath string, start time.Time, reason string) Result {
	return Result{Path: sourcePath, Outcome: OutcomeFailed, Reason: reason, Duration: time.Since(start)}
}

// checkFreeSpace verifies both the working directory and the output
// directory before the transcoder starts; local mode only.
func (c *Converter) checkFreeSpace(sourcePath string) string {
	required := uint64(c.cfg.Processing.MinFreeSpaceGB) << 30
	if required == 0 {
		return ""
	}
	for _, dir := range []string{c.cfg.Processing.WorkDir, filepath.Dir(sourcePath)} {
		free, err := c.freeSpace(dir)
		if err != nil {
			return fmt.Sprintf("free space check for %s: %v", dir, err)
		}
		if free < required {
			return fmt.Sprintf("insufficient free space in %s: %s available, %s required",
				dir, humanize.Bytes(free), humanize.Bytes(required))
		}
	}
	return ""
}

func (c *Converter) remote() bool { return c.cfg.Remote.Enabled }

// outputPath returns the sibling output path: same directory, same stem,
// the normalized output extension.
func (c *Converter) outputPath(sourcePath string) string {
	if c.remote() {
		dir, base := path.Split(sourcePath)
		stem := strings.TrimSuffix(base, path.Ext(base))
		return dir + stem + c.cfg.OutputExtension()
	}
	dir := filepath.Dir(sourcePath)
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+c.cfg.OutputExtension())
}

func extOf(p string, remote bool) string {
	if remote {
		return path.Ext(p)
	}
	return filepath.Ext(p)
}
