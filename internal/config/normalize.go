package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTelegram(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeFFmpeg()
	c.normalizeRetention()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.VideoDir, err = expandPath(c.Paths.VideoDir); err != nil {
		return fmt.Errorf("paths.video_dir: %w", err)
	}
	if c.Paths.CompressedDir, err = expandPath(c.Paths.CompressedDir); err != nil {
		return fmt.Errorf("paths.compressed_dir: %w", err)
	}
	if c.Paths.ManifestPath, err = expandPath(c.Paths.ManifestPath); err != nil {
		return fmt.Errorf("paths.manifest_path: %w", err)
	}
	if c.Paths.ProgressPath, err = expandPath(c.Paths.ProgressPath); err != nil {
		return fmt.Errorf("paths.progress_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTelegram() error {
	if c.Telegram.APIID == 0 {
		if value, ok := os.LookupEnv("TELEGRAM_API_ID"); ok {
			id, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("TELEGRAM_API_ID: %w", err)
			}
			c.Telegram.APIID = id
		}
	}
	if c.Telegram.APIHash == "" {
		if value, ok := os.LookupEnv("TELEGRAM_API_HASH"); ok {
			c.Telegram.APIHash = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Telegram.SessionFile, err = expandPath(c.Telegram.SessionFile); err != nil {
		return fmt.Errorf("telegram.session_file: %w", err)
	}
	c.Telegram.BotUsername = strings.TrimPrefix(strings.TrimSpace(c.Telegram.BotUsername), "@")
	if c.Telegram.BotUsername == "" {
		c.Telegram.BotUsername = defaultBotUsername
	}
	return nil
}

func (c *Config) normalizeWorker() {
	if c.Worker.SettleSeconds <= 0 {
		c.Worker.SettleSeconds = defaultSettleSeconds
	}
	if c.Worker.ScanWindow <= 0 {
		c.Worker.ScanWindow = defaultScanWindow
	}
	if c.Worker.InterEpisodeDelay < 0 {
		c.Worker.InterEpisodeDelay = defaultInterEpisodeDelay
	}
	if c.Worker.InterItemDelay < 0 {
		c.Worker.InterItemDelay = defaultInterItemDelay
	}
	if c.Worker.FloodFloorSeconds <= 0 {
		c.Worker.FloodFloorSeconds = defaultFloodFloorSeconds
	}
	if c.Worker.IdlePollSeconds <= 0 {
		c.Worker.IdlePollSeconds = defaultIdlePollSeconds
	}
	if c.Worker.DiscoveryEmptyAttempts <= 0 {
		c.Worker.DiscoveryEmptyAttempts = defaultDiscoveryEmptyAttempts
	}
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	if c.FFmpeg.TimeoutSeconds <= 0 {
		c.FFmpeg.TimeoutSeconds = defaultFFmpegTimeoutSeconds
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.MaxItems <= 0 {
		c.Retention.MaxItems = defaultRetentionMaxItems
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
