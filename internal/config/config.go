package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "config.yaml"

// Remote parameterizes the SFTP transport. When Enabled is false the daemon
// scans the local directories list instead.
type Remote struct {
	Enabled         bool     `yaml:"enabled"`
	Host            string   `yaml:"host"`
	User            string   `yaml:"user"`
	Port            int      `yaml:"port"`
	KeyFile         string   `yaml:"key_file"`
	Directories     []string `yaml:"directories"`
	ConnectTimeout  int      `yaml:"connect_timeout"`
	TransferTimeout int      `yaml:"transfer_timeout"`
}

// Conversion holds the transcoder parameters. Every field is validated
// against a fixed allowlist or pattern before it can reach an argument
// vector.
type Conversion struct {
	Codec        string   `yaml:"codec"`
	AudioCodec   string   `yaml:"audio_codec"`
	Preset       string   `yaml:"preset"`
	CRF          int      `yaml:"crf"`
	AudioBitrate string   `yaml:"audio_bitrate"`
	ExtraOptions []string `yaml:"extra_options"`
}

// Processing controls discovery filtering and working/state storage.
type Processing struct {
	WorkDir           string   `yaml:"work_dir"`
	StateDir          string   `yaml:"state_dir"`
	IncludeExtensions []string `yaml:"include_extensions"`
	ExcludePatterns   []string `yaml:"exclude_patterns"`
	KeepOriginal      bool     `yaml:"keep_original"`
	MinFreeSpaceGB    int      `yaml:"min_free_space_gb"`
}

// Daemon controls the scan loop and logging sink.
type Daemon struct {
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	ScanInterval int    `yaml:"scan_interval"`
	MaxWorkers   int    `yaml:"max_workers"`
}

// Config encapsulates all configuration for convertd.
type Config struct {
	Directories []string   `yaml:"directories"`
	Remote      Remote     `yaml:"remote"`
	Conversion  Conversion `yaml:"conversion"`
	Processing  Processing `yaml:"processing"`
	Daemon      Daemon     `yaml:"daemon"`
}

// ValidationError marks a configuration value outside its allowlist,
// pattern, or bound. It is fatal at startup and never silently corrected.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Key, e.Reason)
}

func invalid(key, format string, args ...any) error {
	return &ValidationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Load parses and validates the configuration file at path. A missing file
// is reported distinctly (errors.Is fs.ErrNotExist) so callers can exit
// with the dedicated status code.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize trims and absolutizes path fields and lowercases extension
// lists before validation runs.
func (c *Config) normalize() error {
	for i, dir := range c.Directories {
		expanded, err := expandPath(dir)
		if err != nil {
			return err
		}
		c.Directories[i] = expanded
	}

	for _, field := range []*string{
		&c.Processing.WorkDir,
		&c.Processing.StateDir,
		&c.Daemon.LogFile,
		&c.Remote.KeyFile,
	} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}

	for i, ext := range c.Processing.IncludeExtensions {
		c.Processing.IncludeExtensions[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(ext, ".")))
	}
	for i, dir := range c.Remote.Directories {
		c.Remote.Directories[i] = strings.TrimSpace(dir)
	}

	c.Daemon.LogLevel = strings.ToLower(strings.TrimSpace(c.Daemon.LogLevel))
	c.Remote.Host = strings.TrimSpace(c.Remote.Host)
	c.Remote.User = strings.TrimSpace(c.Remote.User)
	return nil
}

// EnsureDirectories creates the working and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Processing.WorkDir, c.Processing.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if logDir := filepath.Dir(c.Daemon.LogFile); logDir != "." && logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory %q: %w", logDir, err)
		}
	}
	return nil
}

// OutputExtension is the normalized container every conversion produces.
func (c *Config) OutputExtension() string { return ".m4v" }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
