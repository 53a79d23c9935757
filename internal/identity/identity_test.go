package identity

import (
	"strings"
	"testing"
)

func TestForPathIsSHA256Hex(t *testing.T) {
	id := ForPath("/some/video/file.mp4")
	if len(id) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("unexpected character %q in identity %s", c, id)
		}
	}
}

func TestForPathDeterministic(t *testing.T) {
	if ForPath("/some/video/file.mp4") != ForPath("/some/video/file.mp4") {
		t.Fatal("same path must produce the same identity")
	}
}

func TestForPathDistinguishesPaths(t *testing.T) {
	if ForPath("/video1.mp4") == ForPath("/video2.mp4") {
		t.Fatal("different paths must produce different identities")
	}
}

func TestValid(t *testing.T) {
	if !Valid(string(ForPath("/a.mp4"))) {
		t.Fatal("ForPath output must validate")
	}
	for _, bad := range []string{
		"",
		"invalid_hash_too_short",
		strings.Repeat("a", 63),
		strings.Repeat("a", 65),
		strings.Repeat("A", 64),
		strings.Repeat("g", 64),
	} {
		if Valid(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestShort(t *testing.T) {
	id := ForPath("/a.mp4")
	if got := id.Short(); got != string(id[:12]) {
		t.Fatalf("unexpected short form %q", got)
	}
}
