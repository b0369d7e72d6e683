package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateModes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.VideoDir == "" {
		return errors.New("paths.video_dir must be set")
	}
	if c.Paths.CompressedDir == "" {
		return errors.New("paths.compressed_dir must be set")
	}
	if c.Paths.VideoDir == c.Paths.CompressedDir {
		return errors.New("paths.video_dir and paths.compressed_dir must differ")
	}
	if c.Paths.ManifestPath == "" {
		return errors.New("paths.manifest_path must be set")
	}
	if c.Paths.ProgressPath == "" {
		return errors.New("paths.progress_path must be set")
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if c.Telegram.APIID == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/dracin/config.toml"
		}
		return fmt.Errorf("telegram.api_id is required. Set TELEGRAM_API_ID env var or edit %s", defaultPath)
	}
	if c.Telegram.APIHash == "" {
		return errors.New("telegram.api_hash is required. Set TELEGRAM_API_HASH env var or edit the config file")
	}
	if c.Telegram.BotUsername == "" {
		return errors.New("telegram.bot_username must be set")
	}
	return nil
}

// validateModes rejects configurations that would run the bulk acquisition
// writer and the retention cache deleter against the same artifact tree.
func (c *Config) validateModes() error {
	if c.Retention.Enabled && c.Worker.Enabled {
		return errors.New("retention.enabled and worker.enabled are mutually exclusive; disable bulk acquisition when running as a serving cache")
	}
	return nil
}
