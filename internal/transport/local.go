package transport

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// Local operates directly on the local filesystem. Connection management
// is a no-op; conversion works on source files in place.
type Local struct {
	logger *slog.Logger
}

// NewLocal constructs the local backend.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Connect(context.Context) error { return nil }

func (l *Local) Close() error { return nil }

func (l *Local) EnsureConnected(context.Context) error { return nil }

// List walks each root once, skipping hidden entries entirely (never
// descending into dot-directories), matching extensions case-insensitively
// and dropping anything hit by an exclude pattern.
func (l *Local) List(ctx context.Context, roots, extensions, excludePatterns []string) ([]string, error) {
	extSet := extensionSet(extensions)
	var results []string

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				l.logger.Warn("cannot read directory entry", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") && path != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if !matchesExtension(name, extSet) {
				return nil
			}
			if matchesExclude(name, path, excludePatterns) {
				return nil
			}
			results = append(results, path)
			return nil
		})
		if err != nil {
			return nil, opErr("list", root, err)
		}
	}
	return results, nil
}

func (l *Local) Stat(_ context.Context, path string) (int64, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, opErr("stat", path, err)
	}
	return info.Size(), info.ModTime(), nil
}

func (l *Local) Exists(_ context.Context, path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Fetch copies a file between local paths. The conversion pipeline works
// on local sources in place, so this only runs for explicit copies.
func (l *Local) Fetch(ctx context.Context, path, localDest string) error {
	if err := copyFile(ctx, path, localDest); err != nil {
		return opErr("fetch", path, err)
	}
	return nil
}

// Publish copies localSrc into place at path via a same-directory
// temporary file and an atomic rename. Work and media directories may sit
// on different filesystems, so a plain rename is not enough.
func (l *Local) Publish(ctx context.Context, localSrc, path string) error {
	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))
	if err := copyFile(ctx, localSrc, tmpPath); err != nil {
		os.Remove(tmpPath)
		return opErr("publish", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return opErr("publish", path, err)
	}
	return nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return opErr("delete", path, err)
	}
	return nil
}

func (l *Local) SetTimes(_ context.Context, path string, atime, mtime time.Time) error {
	if err := os.Chtimes(path, atime, mtime); err != nil {
		return opErr("set-times", path, err)
	}
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if err := copyCtx(ctx, out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyCtx copies in bounded chunks so a cancelled context interrupts large
// transfers instead of blocking until completion.
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 128*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func extensionSet(extensions []string) map[string]struct{} {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return set
}

func matchesExtension(name string, extSet map[string]struct{}) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	_, ok := extSet[ext]
	return ok
}

// matchesExclude tests each pattern against both the bare file name and
// the full path, mirroring shell-glob exclusion semantics.
func matchesExclude(name, fullPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pattern, fullPath); err == nil && ok {
			return true
		}
	}
	return false
}
