package config

const (
	defaultUploadDir            = "~/.local/share/clipforge/uploads"
	defaultOutputDir            = "~/.local/share/clipforge/outputs"
	defaultLogDir               = "~/.local/share/clipforge/logs"
	defaultFontPath             = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"
	defaultAPIBind              = "127.0.0.1:7519"
	defaultFFmpegTimeout        = 900
	defaultFFmpegPreset         = "veryfast"
	defaultFFmpegCRF            = 23
	defaultSubtitleFontSize     = 24
	defaultWorkerCount          = 2
	defaultPollInterval         = 2
	defaultVisibilityTimeout    = 120
	defaultMaxAttempts          = 3
	defaultRetryBackoffSeconds  = 5
	defaultHeartbeatInterval    = 15
	defaultMaxProcessingSeconds = 1800
	defaultWatchdogPollSeconds  = 30
	defaultMinFreeDiskMegabytes = 512
	defaultMaxUploadMegabytes   = 2048
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultNtfyRequestTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir: defaultUploadDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			FontPath:  defaultFontPath,
			APIBind:   defaultAPIBind,
		},
		FFmpeg: FFmpeg{
			Binary:           "ffmpeg",
			FFprobeBinary:    "ffprobe",
			TimeoutSeconds:   defaultFFmpegTimeout,
			Preset:           defaultFFmpegPreset,
			CRF:              defaultFFmpegCRF,
			SubtitleFontSize: defaultSubtitleFontSize,
		},
		Workers: Workers{
			Count:                defaultWorkerCount,
			PollInterval:         defaultPollInterval,
			VisibilityTimeout:    defaultVisibilityTimeout,
			MaxAttempts:          defaultMaxAttempts,
			RetryBackoffSeconds:  defaultRetryBackoffSeconds,
			HeartbeatInterval:    defaultHeartbeatInterval,
			MaxProcessingSeconds: defaultMaxProcessingSeconds,
			WatchdogPollSeconds:  defaultWatchdogPollSeconds,
			MinFreeDiskMegabytes: defaultMinFreeDiskMegabytes,
			MaxUploadMegabytes:   defaultMaxUploadMegabytes,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
