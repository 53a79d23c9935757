// Package ledger persists the record of completed conversions.
//
// The on-disk file is the durable source of truth; the in-memory map is a
// cache rebuilt at startup. Two shapes are read: a legacy flat array of
// identities and the current object mapping identity to metadata. Saves
// always write the object shape, atomically, as a full rewrite.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"convertd/internal/identity"
)

// FileName is the ledger file name inside the state directory.
const FileName = "processed.json"

// Entry records one completed (or simulated) conversion. Entries are
// created once and never mutated.
type Entry struct {
	Timestamp       int64 `json:"timestamp"`
	DurationSeconds int64 `json:"duration_seconds"`
	DryRun          bool  `json:"dry_run,omitempty"`
}

// Store owns the processed-file ledger. All mutation happens under its
// lock; concurrent workers committing conversions serialize here.
type Store struct {
	mu      sync.Mutex
	path    string
	entries map[identity.Identity]Entry
	logger  *slog.Logger
}

// Open loads the ledger from stateDir. Load failures are not fatal: any
// corrupt or unrecognized content resets the ledger to empty with a
// warning, never a partially-trusted state.
func Open(stateDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:   filepath.Join(stateDir, FileName),
		logger: logger,
	}
	s.entries = s.load()
	return s, nil
}

func (s *Store) load() map[identity.Identity]Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("ledger unreadable, starting empty", "path", s.path, "error", err)
		}
		return map[identity.Identity]Entry{}
	}

	entries, err := parse(data, time.Now().Unix())
	if err != nil {
		s.logger.Warn("ledger invalid, resetting to empty", "path", s.path, "error", err)
		return map[identity.Identity]Entry{}
	}
	return entries
}

// parse normalizes both on-disk shapes into the canonical map. It is the
// only place the dual-shape handling lives. A single invalid key discards
// everything.
func parse(data []byte, now int64) (map[identity.Identity]Entry, error) {
	var legacy []string
	if err := json.Unmarshal(data, &legacy); err == nil {
		entries := make(map[identity.Identity]Entry, len(legacy))
		for _, key := range legacy {
			if !identity.Valid(key) {
				return nil, fmt.Errorf("invalid identity %q in legacy ledger", key)
			}
			entries[identity.Identity(key)] = Entry{Timestamp: now}
		}
		return entries, nil
	}

	var mapped map[string]Entry
	if err := json.Unmarshal(data, &mapped); err == nil {
		entries := make(map[identity.Identity]Entry, len(mapped))
		for key, entry := range mapped {
			if !identity.Valid(key) {
				return nil, fmt.Errorf("invalid identity %q in ledger", key)
			}
			entries[identity.Identity(key)] = entry
		}
		return entries, nil
	}

	return nil, errors.New("ledger is neither an identity array nor an identity mapping")
}

// Contains reports whether id has a committed entry.
func (s *Store) Contains(id identity.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of committed entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot returns a copy of all entries for read-only inspection.
func (s *Store) Snapshot() map[identity.Identity]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[identity.Identity]Entry, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out
}

// Record commits an entry for id and rewrites the ledger file. A save
// failure leaves the previous on-disk file intact and is returned to the
// caller, failing that conversion attempt.
func (s *Store) Record(id identity.Identity, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry
	if err := s.saveLocked(); err != nil {
		delete(s.entries, id)
		return err
	}
	return nil
}

// Path returns the ledger file location.
func (s *Store) Path() string { return s.path }

// saveLocked writes the full mapping to a sibling temp file and renames it
// over the destination. The temp file never survives a failed save.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
