package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "convertd.log")
	logger, closer, err := New(Options{Level: "info", FilePath: logPath, NoColor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("cycle complete", "candidates", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("log file is not JSON lines: %v", err)
	}
	if record["msg"] != "cycle complete" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer, err := New(Options{Level: "debug", NoColor: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()
	if !logger.Enabled(nil, slog.LevelDebug) {
		t.Fatal("debug level should be enabled")
	}
}
