package main

import (
	"log/slog"
	"time"

	"clipforge/internal/artifact"
	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/jobqueue"
	"clipforge/internal/mediastore"
	"clipforge/internal/notifications"
	"clipforge/internal/pipeline"
	"clipforge/internal/storage"
	"clipforge/internal/transcode"
	"clipforge/internal/workers"
)

// buildDaemon opens the pipeline database and wires every subsystem the
// daemon runs.
func buildDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}

	artifacts := artifact.NewStore(db)
	jobs := jobqueue.NewStore(db, time.Duration(cfg.Workers.VisibilityTimeout)*time.Second)
	media := mediastore.New(cfg)
	coordinator := pipeline.NewCoordinator(db, artifacts, jobs, media, cfg.FFprobeBinary(), logger)
	coordinator.SetNotifier(notifications.NewService(cfg))

	invoker := transcode.NewFFmpeg(logger,
		transcode.WithBinary(cfg.FFmpegBinary()),
		transcode.WithTimeout(time.Duration(cfg.FFmpeg.TimeoutSeconds)*time.Second),
		transcode.WithEncodeSettings(cfg.FFmpeg.Preset, cfg.FFmpeg.CRF),
		transcode.WithSubtitleStyle(cfg.Paths.FontPath, cfg.FFmpeg.SubtitleFontSize),
	)
	pool := workers.New(cfg, coordinator, jobs, media, invoker, logger)

	d, err := daemon.New(cfg, db, coordinator, jobs, pool, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}
