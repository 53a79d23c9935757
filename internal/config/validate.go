package config

import (
	"path"
	"path/filepath"
	"regexp"
)

var allowedCodecs = map[string]struct{}{
	"libx264":    {},
	"libx265":    {},
	"libvpx-vp9": {},
}

var allowedAudioCodecs = map[string]struct{}{
	"aac":     {},
	"libopus": {},
	"ac3":     {},
	"mp3":     {},
}

var allowedPresets = map[string]struct{}{
	"ultrafast": {},
	"superfast": {},
	"veryfast":  {},
	"faster":    {},
	"fast":      {},
	"medium":    {},
	"slow":      {},
	"slower":    {},
	"veryslow":  {},
	"placebo":   {},
}

// Known container extensions; include_extensions must be a subset.
var allowedExtensions = map[string]struct{}{
	"mp4":  {},
	"mkv":  {},
	"avi":  {},
	"mov":  {},
	"wmv":  {},
	"flv":  {},
	"webm": {},
	"m4v":  {},
	"mpg":  {},
	"mpeg": {},
	"ts":   {},
}

var audioBitratePattern = regexp.MustCompile(`^[0-9]{2,4}k$`)

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate ensures every configured value is inside its allowlist, pattern,
// or bound. The first violation is returned as a *ValidationError.
func (c *Config) Validate() error {
	if err := c.validateDirectories(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	return c.validateDaemon()
}

func (c *Config) validateDirectories() error {
	if c.Remote.Enabled {
		return nil
	}
	if len(c.Directories) == 0 {
		return invalid("directories", "at least one local directory must be configured")
	}
	for _, dir := range c.Directories {
		if !filepath.IsAbs(dir) {
			return invalid("directories", "%q must be an absolute path", dir)
		}
	}
	return nil
}

func (c *Config) validateRemote() error {
	if !c.Remote.Enabled {
		return nil
	}
	if c.Remote.Host == "" {
		return invalid("remote.host", "must be set when remote.enabled is true")
	}
	if c.Remote.User == "" {
		return invalid("remote.user", "must be set when remote.enabled is true")
	}
	if c.Remote.Port < 1 || c.Remote.Port > 65535 {
		return invalid("remote.port", "%d is outside [1, 65535]", c.Remote.Port)
	}
	if len(c.Remote.Directories) == 0 {
		return invalid("remote.directories", "at least one remote directory must be configured")
	}
	for _, dir := range c.Remote.Directories {
		if !path.IsAbs(dir) {
			return invalid("remote.directories", "%q must be an absolute POSIX path", dir)
		}
	}
	if c.Remote.ConnectTimeout <= 0 {
		return invalid("remote.connect_timeout", "must be positive (seconds)")
	}
	if c.Remote.TransferTimeout <= 0 {
		return invalid("remote.transfer_timeout", "must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if _, ok := allowedCodecs[c.Conversion.Codec]; !ok {
		return invalid("conversion.codec", "%q is not an allowed codec", c.Conversion.Codec)
	}
	if _, ok := allowedAudioCodecs[c.Conversion.AudioCodec]; !ok {
		return invalid("conversion.audio_codec", "%q is not an allowed audio codec", c.Conversion.AudioCodec)
	}
	if _, ok := allowedPresets[c.Conversion.Preset]; !ok {
		return invalid("conversion.preset", "%q is not an allowed preset", c.Conversion.Preset)
	}
	if c.Conversion.CRF < 0 || c.Conversion.CRF > 51 {
		return invalid("conversion.crf", "%d is outside [0, 51]", c.Conversion.CRF)
	}
	if !audioBitratePattern.MatchString(c.Conversion.AudioBitrate) {
		return invalid("conversion.audio_bitrate", "%q does not match the expected form (e.g. 128k)", c.Conversion.AudioBitrate)
	}
	if len(c.Conversion.ExtraOptions) != 0 {
		return invalid("conversion.extra_options", "extra_options is disabled; arbitrary transcoder flags are not accepted")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.WorkDir == "" {
		return invalid("processing.work_dir", "must be set")
	}
	if c.Processing.StateDir == "" {
		return invalid("processing.state_dir", "must be set")
	}
	if len(c.Processing.IncludeExtensions) == 0 {
		return invalid("processing.include_extensions", "at least one extension must be configured")
	}
	for _, ext := range c.Processing.IncludeExtensions {
		if _, ok := allowedExtensions[ext]; !ok {
			return invalid("processing.include_extensions", "%q is not a known container extension", ext)
		}
	}
	if c.Processing.MinFreeSpaceGB < 0 || c.Processing.MinFreeSpaceGB > MaxFreeSpaceGB {
		return invalid("processing.min_free_space_gb", "%d is outside [0, %d]", c.Processing.MinFreeSpaceGB, MaxFreeSpaceGB)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if _, ok := allowedLogLevels[c.Daemon.LogLevel]; !ok {
		return invalid("daemon.log_level", "%q is not one of debug, info, warn, error", c.Daemon.LogLevel)
	}
	if c.Daemon.LogFile == "" {
		return invalid("daemon.log_file", "must be set")
	}
	if c.Daemon.ScanInterval < MinScanInterval {
		return invalid("daemon.scan_interval", "%d is below the %d second floor", c.Daemon.ScanInterval, MinScanInterval)
	}
	if c.Daemon.MaxWorkers < 1 || c.Daemon.MaxWorkers > MaxWorkersLimit {
		return invalid("daemon.max_workers", "%d is outside [1, %d]", c.Daemon.MaxWorkers, MaxWorkersLimit)
	}
	return nil
}
