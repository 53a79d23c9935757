// Package transcode wraps the external ffmpeg binary. The argument vector
// is built exclusively from validated configuration plus the resolved
// input and output paths; nothing ever passes through a shell and no
// free-form flags are accepted.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"convertd/internal/config"
)

var commandContext = exec.CommandContext

const (
	// defaultMaxRunDuration is an absolute wall-clock ceiling, not a
	// liveness timeout: a stalled process is killed when it expires.
	defaultMaxRunDuration = 3 * time.Hour

	// maxDiagnosticBytes bounds how much transcoder stderr reaches the
	// logs; hostile or corrupt inputs can produce megabytes of it.
	maxDiagnosticBytes = 2048
)

// ErrTimedOut marks a transcode killed at the wall-clock ceiling.
var ErrTimedOut = errors.New("transcode timed out")

// ExitError reports a nonzero transcoder exit with bounded diagnostics.
type ExitError struct {
	Code       int
	Diagnostic string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("transcoder exited with status %d: %s", e.Code, e.Diagnostic)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithMaxRunDuration overrides the wall-clock ceiling.
func WithMaxRunDuration(d time.Duration) Option {
	return func(c *CLI) {
		if d > 0 {
			c.maxRun = d
		}
	}
}

// CLI invokes the ffmpeg command-line transcoder.
type CLI struct {
	binary string
	maxRun time.Duration
}

// NewCLI constructs a client with defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", maxRun: defaultMaxRunDuration}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Args builds the fixed, fully-enumerated argument vector.
func (c *CLI) Args(conv config.Conversion, inputPath, outputPath string) []string {
	return []string{
		"-nostdin",
		"-i", inputPath,
		"-c:v", conv.Codec,
		"-crf", strconv.Itoa(conv.CRF),
		"-preset", conv.Preset,
		"-c:a", conv.AudioCodec,
		"-b:a", conv.AudioBitrate,
		"-y", outputPath,
	}
}

// Run executes the transcoder, bounded by the run ceiling. A nonzero exit
// surfaces as *ExitError with truncated stderr; hitting the ceiling
// surfaces as ErrTimedOut.
func (c *CLI) Run(ctx context.Context, conv config.Conversion, inputPath, outputPath string) error {
	runCtx, cancel := context.WithTimeout(ctx, c.maxRun)
	defer cancel()

	cmd := commandContext(runCtx, c.binary, c.Args(conv, inputPath, outputPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w after %s", ErrTimedOut, c.maxRun)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Diagnostic: Truncate(stderr.String(), maxDiagnosticBytes)}
	}
	return fmt.Errorf("run %s: %w", c.binary, err)
}

// Truncate bounds attacker-influenced diagnostic text before logging.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (truncated)"
}
