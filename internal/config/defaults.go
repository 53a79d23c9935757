package config

// Bounds enforced by Validate. The worker ceiling and scan-interval floor
// guard against resource exhaustion and busy-looping respectively.
const (
	MinScanInterval = 30
	MaxWorkersLimit = 8
	MaxFreeSpaceGB  = 1024
)

// Default returns the configuration used as the base before a file is
// overlaid. File values replace defaults; omitted keys keep them.
func Default() Config {
	return Config{
		Conversion: Conversion{
			Codec:        "libx264",
			AudioCodec:   "aac",
			Preset:       "medium",
			CRF:          23,
			AudioBitrate: "128k",
		},
		Processing: Processing{
			IncludeExtensions: []string{"mp4", "mkv", "avi", "mov"},
			KeepOriginal:      true,
			MinFreeSpaceGB:    5,
		},
		Remote: Remote{
			Port:            22,
			ConnectTimeout:  30,
			TransferTimeout: 3600,
		},
		Daemon: Daemon{
			LogLevel:     "info",
			LogFile:      "convertd.log",
			ScanInterval: 300,
			MaxWorkers:   2,
		},
	}
}
