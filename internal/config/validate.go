package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.UploadDir == c.Paths.OutputDir {
		return errors.New("paths.upload_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return errors.New("ffmpeg.crf must be between 0 and 51")
	}
	if c.FFmpeg.TimeoutSeconds < 10 {
		return fmt.Errorf("ffmpeg.timeout_seconds must be at least 10, got %d", c.FFmpeg.TimeoutSeconds)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count > 64 {
		return fmt.Errorf("workers.count %d exceeds the maximum of 64", c.Workers.Count)
	}
	if c.Workers.VisibilityTimeout < c.Workers.HeartbeatInterval*2 {
		return errors.New("workers.visibility_timeout must be at least twice workers.heartbeat_interval")
	}
	if c.Workers.MaxAttempts > 10 {
		return fmt.Errorf("workers.max_attempts %d exceeds the maximum of 10", c.Workers.MaxAttempts)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
