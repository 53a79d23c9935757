// Package testsupport provides shared fixtures for convertd tests.
package testsupport

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"convertd/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config seeded with unique temp directories
// per test, created up front so components can use them immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Directories = []string{filepath.Join(base, "media")}
	cfgVal.Processing.WorkDir = filepath.Join(base, "work")
	cfgVal.Processing.StateDir = filepath.Join(base, "state")
	cfgVal.Processing.MinFreeSpaceGB = 0
	cfgVal.Daemon.LogFile = filepath.Join(base, "logs", "convertd.log")
	cfgVal.Daemon.ScanInterval = config.MinScanInterval

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{
		cfgVal.Directories[0],
		cfgVal.Processing.WorkDir,
		cfgVal.Processing.StateDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	return builder.cfg
}

// WithMaxWorkers sets the worker pool bound.
func WithMaxWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.MaxWorkers = n
	}
}

// WithKeepOriginal controls post-success deletion of sources.
func WithKeepOriginal(keep bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.KeepOriginal = keep
	}
}

// WithExtensions overrides the discovery extension allowlist.
func WithExtensions(exts ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.IncludeExtensions = exts
	}
}

// WithExcludePatterns sets the discovery exclude globs.
func WithExcludePatterns(patterns ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.ExcludePatterns = patterns
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. The stub creates the file named by its last
// argument, approximating a transcoder that produces its output path.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nfor last; do :; done\n: > \"$last\"\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// MediaDir returns the local scan root backing the generated config.
func MediaDir(cfg *config.Config) string {
	return cfg.Directories[0]
}

// Logger returns a logger that swallows output.
func Logger(testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
