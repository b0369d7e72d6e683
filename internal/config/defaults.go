package config

const (
	defaultVideoDir               = "~/.local/share/dracin/raw"
	defaultCompressedDir          = "~/.local/share/dracin/videos"
	defaultManifestPath           = "~/.local/share/dracin/dramas.json"
	defaultProgressPath           = "~/.local/share/dracin/download_progress.json"
	defaultLogDir                 = "~/.local/share/dracin/logs"
	defaultAPIBind                = "127.0.0.1:3001"
	defaultSessionFile            = "~/.local/share/dracin/session.json"
	defaultBotUsername            = "IDShortBot"
	defaultSettleSeconds          = 5
	defaultScanWindow             = 50
	defaultInterEpisodeDelay      = 5
	defaultInterItemDelay         = 5
	defaultFloodFloorSeconds      = 300
	defaultIdlePollSeconds        = 15
	defaultDiscoveryEmptyAttempts = 3
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFmpegTimeoutSeconds   = 1800
	defaultRetentionMaxItems      = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			VideoDir:      defaultVideoDir,
			CompressedDir: defaultCompressedDir,
			ManifestPath:  defaultManifestPath,
			ProgressPath:  defaultProgressPath,
			LogDir:        defaultLogDir,
			APIBind:       defaultAPIBind,
		},
		Telegram: Telegram{
			SessionFile: defaultSessionFile,
			BotUsername: defaultBotUsername,
		},
		Worker: Worker{
			Enabled:                true,
			SettleSeconds:          defaultSettleSeconds,
			ScanWindow:             defaultScanWindow,
			InterEpisodeDelay:      defaultInterEpisodeDelay,
			InterItemDelay:         defaultInterItemDelay,
			FloodFloorSeconds:      defaultFloodFloorSeconds,
			IdlePollSeconds:        defaultIdlePollSeconds,
			DiscoveryEmptyAttempts: defaultDiscoveryEmptyAttempts,
		},
		FFmpeg: FFmpeg{
			Binary:         defaultFFmpegBinary,
			TimeoutSeconds: defaultFFmpegTimeoutSeconds,
		},
		Retention: Retention{
			MaxItems: defaultRetentionMaxItems,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
