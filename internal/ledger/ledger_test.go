package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"convertd/internal/identity"
)

func openStore(t *testing.T, stateDir string) *Store {
	t.Helper()
	s, err := Open(stateDir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestRecordAndReload(t *testing.T) {
	stateDir := t.TempDir()
	s := openStore(t, stateDir)

	id := identity.ForPath("/media/show/episode.mkv")
	if err := s.Record(id, Entry{Timestamp: 1234567890, DurationSeconds: 42}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	reloaded := openStore(t, stateDir)
	if !reloaded.Contains(id) {
		t.Fatal("entry lost across reload")
	}
	entry := reloaded.Snapshot()[id]
	if entry.Timestamp != 1234567890 || entry.DurationSeconds != 42 {
		t.Fatalf("unexpected entry after reload: %+v", entry)
	}
}

func TestRecordPersistsDryRunFlag(t *testing.T) {
	stateDir := t.TempDir()
	s := openStore(t, stateDir)

	id := identity.ForPath("/media/sim.mkv")
	if err := s.Record(id, Entry{Timestamp: 99, DryRun: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("ledger file is not an object mapping: %v", err)
	}
	if raw[string(id)]["dry_run"] != true {
		t.Fatalf("dry_run flag missing from %v", raw[string(id)])
	}
}

func TestLoadLegacyArray(t *testing.T) {
	stateDir := t.TempDir()
	a := strings.Repeat("a", 64)
	b := strings.Repeat("b", 64)
	writeLedger(t, stateDir, `["`+a+`", "`+b+`"]`)

	s := openStore(t, stateDir)
	if s.Len() != 2 {
		t.Fatalf("expected 2 migrated entries, got %d", s.Len())
	}
	for _, key := range []string{a, b} {
		entry, ok := s.Snapshot()[identity.Identity(key)]
		if !ok {
			t.Fatalf("missing migrated identity %s", key)
		}
		if entry.DurationSeconds != 0 {
			t.Fatalf("legacy entries carry no duration, got %d", entry.DurationSeconds)
		}
		if entry.Timestamp == 0 {
			t.Fatal("legacy entries get a synthesized timestamp")
		}
	}
}

func TestLoadNextSaveUpgradesLegacyShape(t *testing.T) {
	stateDir := t.TempDir()
	writeLedger(t, stateDir, `["`+strings.Repeat("a", 64)+`"]`)

	s := openStore(t, stateDir)
	if err := s.Record(identity.ForPath("/new.mkv"), Entry{Timestamp: 1}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var mapped map[string]Entry
	if err := json.Unmarshal(data, &mapped); err != nil {
		t.Fatalf("save after legacy load must write the object shape: %v", err)
	}
	if len(mapped) != 2 {
		t.Fatalf("expected both entries in upgraded file, got %d", len(mapped))
	}
}

func TestLoadResetsOnInvalidIdentity(t *testing.T) {
	for name, content := range map[string]string{
		"array":  `["invalid_hash_too_short"]`,
		"object": `{"not-an-identity": {"timestamp": 1}}`,
		"mixed":  `["` + strings.Repeat("a", 64) + `", "nope"]`,
	} {
		t.Run(name, func(t *testing.T) {
			stateDir := t.TempDir()
			writeLedger(t, stateDir, content)
			s := openStore(t, stateDir)
			if s.Len() != 0 {
				t.Fatalf("corrupt ledger must load empty, got %d entries", s.Len())
			}
		})
	}
}

func TestLoadResetsOnUnrecognizedShape(t *testing.T) {
	for name, content := range map[string]string{
		"scalar":    `42`,
		"string":    `"hello"`,
		"malformed": `{"truncated":`,
	} {
		t.Run(name, func(t *testing.T) {
			stateDir := t.TempDir()
			writeLedger(t, stateDir, content)
			s := openStore(t, stateDir)
			if s.Len() != 0 {
				t.Fatalf("unrecognized shape must load empty, got %d entries", s.Len())
			}
		})
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := openStore(t, t.TempDir())
	if s.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", s.Len())
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	stateDir := t.TempDir()
	s := openStore(t, stateDir)
	for i := 0; i < 3; i++ {
		path := filepath.Join("/media", "file", string(rune('a'+i))+".mkv")
		if err := s.Record(identity.ForPath(path), Entry{Timestamp: int64(i)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(stateDir, "*.tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("temp artifacts survived save: %v", matches)
	}
}

func TestFailedSavePreservesExistingFileAndRollsBack(t *testing.T) {
	stateDir := t.TempDir()
	s := openStore(t, stateDir)
	id := identity.ForPath("/a.mkv")
	if err := s.Record(id, Entry{Timestamp: 7}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	before, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	// Make the state directory unwritable so the temp file creation fails.
	if err := os.Chmod(stateDir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(stateDir, 0o755) })
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	other := identity.ForPath("/b.mkv")
	if err := s.Record(other, Entry{Timestamp: 8}); err == nil {
		t.Fatal("expected save failure")
	}
	if s.Contains(other) {
		t.Fatal("failed commit must not remain in memory")
	}

	os.Chmod(stateDir, 0o755)
	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatal("failed save corrupted the existing ledger file")
	}
}

func writeLedger(t *testing.T, stateDir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(stateDir, FileName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
