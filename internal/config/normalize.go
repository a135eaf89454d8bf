package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("normalize upload_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("normalize output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("normalize log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.FontPath) != "" {
		if c.Paths.FontPath, err = expandPath(c.Paths.FontPath); err != nil {
			return fmt.Errorf("normalize font_path: %w", err)
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	c.FFmpeg.Preset = strings.TrimSpace(c.FFmpeg.Preset)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.FFmpeg.TimeoutSeconds <= 0 {
		c.FFmpeg.TimeoutSeconds = defaultFFmpegTimeout
	}
	if c.FFmpeg.CRF <= 0 {
		c.FFmpeg.CRF = defaultFFmpegCRF
	}
	if c.FFmpeg.SubtitleFontSize <= 0 {
		c.FFmpeg.SubtitleFontSize = defaultSubtitleFontSize
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = defaultWorkerCount
	}
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = defaultPollInterval
	}
	if c.Workers.VisibilityTimeout <= 0 {
		c.Workers.VisibilityTimeout = defaultVisibilityTimeout
	}
	if c.Workers.MaxAttempts <= 0 {
		c.Workers.MaxAttempts = defaultMaxAttempts
	}
	if c.Workers.RetryBackoffSeconds <= 0 {
		c.Workers.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Workers.HeartbeatInterval <= 0 {
		c.Workers.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workers.MaxProcessingSeconds <= 0 {
		c.Workers.MaxProcessingSeconds = defaultMaxProcessingSeconds
	}
	if c.Workers.WatchdogPollSeconds <= 0 {
		c.Workers.WatchdogPollSeconds = defaultWatchdogPollSeconds
	}
	if c.Workers.MinFreeDiskMegabytes < 0 {
		c.Workers.MinFreeDiskMegabytes = defaultMinFreeDiskMegabytes
	}
	if c.Workers.MaxUploadMegabytes <= 0 {
		c.Workers.MaxUploadMegabytes = defaultMaxUploadMegabytes
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyRequestTimeout
	}

	return nil
}
