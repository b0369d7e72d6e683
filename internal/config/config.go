package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	VideoDir      string `toml:"video_dir"`
	CompressedDir string `toml:"compressed_dir"`
	ManifestPath  string `toml:"manifest_path"`
	ProgressPath  string `toml:"progress_path"`
	LogDir        string `toml:"log_dir"`
	APIBind       string `toml:"api_bind"`
}

// Telegram contains connection settings for the upstream content session.
type Telegram struct {
	APIID       int    `toml:"api_id"`
	APIHash     string `toml:"api_hash"`
	SessionFile string `toml:"session_file"`
	BotUsername string `toml:"bot_username"`
}

// Worker contains timing and pacing knobs for the acquisition loop.
type Worker struct {
	// Enabled selects bulk mode: the cursor walks the full catalog. When
	// false only priority-driven items are processed.
	Enabled                bool `toml:"enabled"`
	SettleSeconds          int  `toml:"settle_seconds"`
	ScanWindow             int  `toml:"scan_window"`
	InterEpisodeDelay      int  `toml:"inter_episode_delay_seconds"`
	InterItemDelay         int  `toml:"inter_item_delay_seconds"`
	FloodFloorSeconds      int  `toml:"flood_floor_seconds"`
	IdlePollSeconds        int  `toml:"idle_poll_seconds"`
	DiscoveryEmptyAttempts int  `toml:"discovery_empty_attempts"`
}

// FFmpeg contains transcoder invocation settings. The encoding profile
// itself is fixed; only the binary and the watchdog timeout are tunable.
type FFmpeg struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Retention contains configuration for the hot serving cache mode.
type Retention struct {
	Enabled  bool `toml:"enabled"`
	MaxItems int  `toml:"max_items"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the dracin daemon.
//
// Sections by subsystem:
//   - Paths: artifact directories, manifest/ledger locations, API bind
//   - Telegram: upstream session credentials and bot handle
//   - Worker: acquisition loop pacing and backoff floors
//   - FFmpeg: transcoder binary and timeout
//   - Retention: LRU serving-cache mode
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Telegram  Telegram  `toml:"telegram"`
	Worker    Worker    `toml:"worker"`
	FFmpeg    FFmpeg    `toml:"ffmpeg"`
	Retention Retention `toml:"retention"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dracin/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("dracin.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// clobber an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.VideoDir,
		c.Paths.CompressedDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.ProgressPath),
		filepath.Dir(c.Telegram.SessionFile),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
