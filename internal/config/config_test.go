package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"convertd/internal/config"
)

func baseConfig(t *testing.T) map[string]any {
	t.Helper()
	base := t.TempDir()
	return map[string]any{
		"directories": []string{base},
		"conversion": map[string]any{
			"codec":         "libx264",
			"crf":           23,
			"preset":        "medium",
			"audio_codec":   "aac",
			"audio_bitrate": "128k",
			"extra_options": []string{},
		},
		"processing": map[string]any{
			"work_dir":           filepath.Join(base, "work"),
			"state_dir":          filepath.Join(base, "state"),
			"include_extensions": []string{"mp4"},
			"exclude_patterns":   []string{},
			"keep_original":      true,
		},
		"daemon": map[string]any{
			"log_level":     "info",
			"log_file":      filepath.Join(base, "logs", "daemon.log"),
			"scan_interval": 300,
			"max_workers":   2,
		},
	}
}

func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadExpectingValidationError(t *testing.T, doc map[string]any, wantSubstring string) {
	t.Helper()
	_, err := config.Load(writeConfig(t, doc))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), wantSubstring) {
		t.Fatalf("error %q does not mention %q", err.Error(), wantSubstring)
	}
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, baseConfig(t)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Conversion.Codec != "libx264" {
		t.Fatalf("unexpected codec %q", cfg.Conversion.Codec)
	}
	if !cfg.Processing.KeepOriginal {
		t.Fatal("keep_original should be true")
	}
	if cfg.Remote.Port != 22 {
		t.Fatalf("remote defaults not applied, port=%d", cfg.Remote.Port)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Processing.WorkDir, cfg.Processing.StateDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected %q to be a directory: %v", dir, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestInvalidCodecRejected(t *testing.T) {
	doc := baseConfig(t)
	doc["conversion"].(map[string]any)["codec"] = "invalid_codec"
	loadExpectingValidationError(t, doc, "codec")
}

func TestExtraOptionsDisabled(t *testing.T) {
	doc := baseConfig(t)
	doc["conversion"].(map[string]any)["extra_options"] = []string{"-movflags", "+faststart"}
	loadExpectingValidationError(t, doc, "extra_options is disabled")
}

func TestInvalidPresetRejected(t *testing.T) {
	doc := baseConfig(t)
	doc["conversion"].(map[string]any)["preset"] = "invalid_preset"
	loadExpectingValidationError(t, doc, "preset")
}

func TestInvalidCRFRejected(t *testing.T) {
	doc := baseConfig(t)
	doc["conversion"].(map[string]any)["crf"] = 99
	loadExpectingValidationError(t, doc, "crf")
}

func TestInvalidAudioBitrateRejected(t *testing.T) {
	doc := baseConfig(t)
	doc["conversion"].(map[string]any)["audio_bitrate"] = "invalid"
	loadExpectingValidationError(t, doc, "audio_bitrate")
}

func TestMaxWorkersCeiling(t *testing.T) {
	doc := baseConfig(t)
	doc["daemon"].(map[string]any)["max_workers"] = 10
	loadExpectingValidationError(t, doc, "max_workers")
}

func TestScanIntervalFloor(t *testing.T) {
	doc := baseConfig(t)
	doc["daemon"].(map[string]any)["scan_interval"] = 10
	loadExpectingValidationError(t, doc, "scan_interval")
}

func TestUnknownExtensionRejected(t *testing.T) {
	doc := baseConfig(t)
	doc["processing"].(map[string]any)["include_extensions"] = []string{"exe"}
	loadExpectingValidationError(t, doc, "include_extensions")
}

func TestRemoteRequiresHost(t *testing.T) {
	doc := baseConfig(t)
	doc["remote"] = map[string]any{
		"enabled":     true,
		"user":        "convert",
		"directories": []string{"/media"},
	}
	loadExpectingValidationError(t, doc, "remote.host")
}

func TestRemoteDirectoriesMustBeAbsolute(t *testing.T) {
	doc := baseConfig(t)
	doc["remote"] = map[string]any{
		"enabled":     true,
		"host":        "media.example.com",
		"user":        "convert",
		"directories": []string{"media/relative"},
	}
	loadExpectingValidationError(t, doc, "remote.directories")
}

func TestExtensionsNormalized(t *testing.T) {
	doc := baseConfig(t)
	doc["processing"].(map[string]any)["include_extensions"] = []string{".MP4", "Mkv"}
	cfg, err := config.Load(writeConfig(t, doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"mp4", "mkv"}
	for i, ext := range cfg.Processing.IncludeExtensions {
		if ext != want[i] {
			t.Fatalf("expected normalized extensions %v, got %v", want, cfg.Processing.IncludeExtensions)
		}
	}
}

func TestCreateSampleValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("sample config must pass validation: %v", err)
	}
}
