// Package discovery enumerates conversion candidates from the configured
// scan roots, local or remote, applying the extension allowlist, exclude
// globs, and path-safety filtering.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"convertd/internal/config"
	"convertd/internal/pathsafe"
	"convertd/internal/transport"
)

// maxDiscovered bounds one scan cycle. Anything beyond the cap waits for
// the next cycle; the ledger guarantees nothing is converted twice.
const maxDiscovered = 1000

// Scanner finds candidate files for one scan cycle.
type Scanner struct {
	cfg       *config.Config
	tr        transport.Transport
	validator *pathsafe.Local
	logger    *slog.Logger
}

// NewScanner wires a scanner over the given transport. validator is only
// consulted in local mode.
func NewScanner(cfg *config.Config, tr transport.Transport, validator *pathsafe.Local, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{cfg: cfg, tr: tr, validator: validator, logger: logger}
}

// Discover lists every candidate under the scan roots that survives
// extension, exclude, and safety filtering. A root that is missing or not
// a directory is skipped with a warning, never a fatal error; the cycle
// proceeds with whatever roots remain.
func (s *Scanner) Discover(ctx context.Context) ([]string, error) {
	roots := s.roots()
	if len(roots) == 0 {
		s.logger.Warn("no usable scan roots this cycle")
		return nil, nil
	}

	if err := s.tr.EnsureConnected(ctx); err != nil {
		return nil, fmt.Errorf("transport unavailable: %w", err)
	}

	found, err := s.tr.List(ctx, roots, s.cfg.Processing.IncludeExtensions, s.cfg.Processing.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("scan %s roots: %w", s.tr.Name(), err)
	}

	candidates := make([]string, 0, len(found))
	for _, p := range found {
		if !s.safe(p) {
			s.logger.Warn("discovered path failed safety check, dropping", "path", p)
			continue
		}
		candidates = append(candidates, p)
		if len(candidates) == maxDiscovered {
			s.logger.Warn("discovery cap reached, deferring remainder to next cycle",
				"cap", maxDiscovered, "listed", len(found))
			break
		}
	}

	s.logger.Debug("scan complete", "roots", len(roots), "candidates", len(candidates))
	return candidates, nil
}

// roots returns the scan roots for the active mode, pruning local roots
// that do not currently exist as directories.
func (s *Scanner) roots() []string {
	if s.cfg.Remote.Enabled {
		return s.cfg.Remote.Directories
	}

	usable := make([]string, 0, len(s.cfg.Directories))
	for _, root := range s.cfg.Directories {
		info, err := os.Stat(root)
		if err != nil {
			s.logger.Warn("scan root unavailable, skipping", "root", root, "error", err)
			continue
		}
		if !info.IsDir() {
			s.logger.Warn("scan root is not a directory, skipping", "root", root)
			continue
		}
		usable = append(usable, root)
	}
	return usable
}

func (s *Scanner) safe(p string) bool {
	if s.cfg.Remote.Enabled {
		return pathsafe.CheckRemote(p, s.cfg.Remote.Directories)
	}
	return s.validator.Check(p)
}
