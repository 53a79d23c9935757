package transport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalListFiltersAndSkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.mp4"))
	writeFile(t, filepath.Join(root, "keep-upper.MP4"))
	writeFile(t, filepath.Join(root, "nested", "deep.mkv"))
	writeFile(t, filepath.Join(root, "skip.txt"))
	writeFile(t, filepath.Join(root, ".hidden.mp4"))
	writeFile(t, filepath.Join(root, ".stash", "buried.mp4"))
	writeFile(t, filepath.Join(root, "sample.sample.mp4"))

	l := NewLocal(nil)
	got, err := l.List(context.Background(), []string{root}, []string{"mp4", "mkv"}, []string{"*.sample.*"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	want := map[string]bool{
		filepath.Join(root, "keep.mp4"):             true,
		filepath.Join(root, "keep-upper.MP4"):       true,
		filepath.Join(root, "nested", "deep.mkv"):   true,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected result set %v", got)
	}
	for _, path := range got {
		if !want[path] {
			t.Fatalf("unexpected candidate %s", path)
		}
	}
}

func TestLocalListExcludeMatchesFullPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "extras", "bonus.mp4"))
	writeFile(t, filepath.Join(root, "main.mp4"))

	l := NewLocal(nil)
	got, err := l.List(context.Background(), []string{root}, []string{"mp4"}, []string{"**/extras/**"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0] != filepath.Join(root, "main.mp4") {
		t.Fatalf("expected only main.mp4, got %v", got)
	}
}

func TestLocalStatAndExists(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "video.mp4")
	writeFile(t, path)

	l := NewLocal(nil)
	size, mtime, err := l.Stat(context.Background(), path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len("content")) {
		t.Fatalf("unexpected size %d", size)
	}
	if mtime.IsZero() {
		t.Fatal("expected a modification time")
	}
	if !l.Exists(context.Background(), path) {
		t.Fatal("Exists should see the file")
	}
	if l.Exists(context.Background(), filepath.Join(root, "nope.mp4")) {
		t.Fatal("Exists must not see a missing file")
	}

	if _, _, err := l.Stat(context.Background(), filepath.Join(root, "nope.mp4")); err == nil {
		t.Fatal("expected stat error")
	} else {
		var opError *OperationError
		if !errors.As(err, &opError) {
			t.Fatalf("expected OperationError, got %T: %v", err, err)
		}
	}
}

func TestLocalPublishIsAtomicAndClean(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "work", "out.m4v")
	writeFile(t, src)
	dest := filepath.Join(root, "media", "final.m4v")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(nil)
	if err := l.Publish(context.Background(), src, dest); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "content" {
		t.Fatalf("published content wrong: %q, %v", data, err)
	}
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp artifacts left next to the destination: %v", entries)
	}
}

func TestLocalPublishFailureRemovesTemp(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "media", "final.m4v")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(nil)
	if err := l.Publish(context.Background(), filepath.Join(root, "missing.m4v"), dest); err == nil {
		t.Fatal("expected publish failure")
	}
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp artifacts survived failed publish: %v", entries)
	}
}

func TestLocalSetTimes(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "video.mp4")
	writeFile(t, path)

	l := NewLocal(nil)
	want := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := l.SetTimes(context.Background(), path, want, want); err != nil {
		t.Fatalf("SetTimes: %v", err)
	}
	_, mtime, err := l.Stat(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !mtime.Equal(want) {
		t.Fatalf("mtime not applied: got %v want %v", mtime, want)
	}
}

func TestLocalDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "video.mp4")
	writeFile(t, path)

	l := NewLocal(nil)
	if err := l.Delete(context.Background(), path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if l.Exists(context.Background(), path) {
		t.Fatal("file still exists after delete")
	}
}
