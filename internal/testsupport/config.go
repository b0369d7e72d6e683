package testsupport

import (
	"path/filepath"
	"testing"

	"dracin/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// All pacing delays are zeroed so loops run at full speed, and fake session
// credentials are filled in so Validate passes.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.VideoDir = filepath.Join(base, "videos")
	cfgVal.Paths.CompressedDir = filepath.Join(base, "compressed")
	cfgVal.Paths.ManifestPath = filepath.Join(base, "manifest.json")
	cfgVal.Paths.ProgressPath = filepath.Join(base, "progress.json")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Telegram.APIID = 12345
	cfgVal.Telegram.APIHash = "test"
	cfgVal.Telegram.SessionFile = filepath.Join(base, "session.json")
	cfgVal.Worker.Enabled = false
	cfgVal.Worker.SettleSeconds = 0
	cfgVal.Worker.InterEpisodeDelay = 0
	cfgVal.Worker.InterItemDelay = 0
	cfgVal.Worker.IdlePollSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkerEnabled toggles bulk acquisition mode on the test config.
func WithWorkerEnabled(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.Enabled = enabled
	}
}

// WithRetention switches the test config into serving-cache mode with the
// given capacity.
func WithRetention(maxItems int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.Enabled = false
		b.cfg.Retention.Enabled = true
		b.cfg.Retention.MaxItems = maxItems
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.VideoDir)
}
