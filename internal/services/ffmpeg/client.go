package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"dracin/internal/services"
)

var commandContext = exec.CommandContext

// stderrTailBytes bounds how much transcoder diagnostic output is carried in
// a failure error.
const stderrTailBytes = 500

// Transcoder converts a raw download into the delivery format.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTimeout bounds a single transcode invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// CLI wraps the ffmpeg command-line transcoder. The encoding profile is
// fixed: callers cannot vary quality per item.
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", timeout: 30 * time.Minute}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Transcode runs ffmpeg over inputPath, producing outputPath. Success is
// exit code zero. On failure the partial output is removed and the returned
// error carries the tail of the process's stderr; the input is left in
// place for a later retry.
func (c *CLI) Transcode(ctx context.Context, inputPath, outputPath string) error {
	if strings.TrimSpace(inputPath) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(outputPath) == "" {
		return errors.New("output path required")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"-i", inputPath,
		"-c:v", "libx264",
		"-crf", "32",
		"-preset", "fast",
		"-c:a", "aac",
		"-b:a", "64k",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}

	tail := newTailBuffer(stderrTailBytes)
	cmd := commandContext(runCtx, c.binary, args...) //nolint:gosec
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		return services.Wrap(services.ErrTranscode, "ffmpeg", "transcode", tail.String(), err)
	}
	return nil
}

var _ Transcoder = (*CLI)(nil)

// tailBuffer keeps only the last N bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.data))
}
