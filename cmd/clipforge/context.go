package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
	"clipforge/internal/artifact"
	"clipforge/internal/config"
	"clipforge/internal/jobqueue"
	"clipforge/internal/logging"
	"clipforge/internal/mediastore"
	"clipforge/internal/pipeline"
	"clipforge/internal/storage"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolvedPath
		c.configExists = exists
	})
	return c.config, c.configErr
}

// client builds an HTTP client against the running daemon. The --api
// flag overrides the configured bind address.
func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	bind := cfg.Paths.APIBind
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		bind = strings.TrimSpace(*c.apiFlag)
	}
	return api.NewClient(bind, cfg.Paths.APIToken), nil
}

// withPipeline opens the shared database directly for commands that
// work without a running daemon.
func (c *commandContext) withPipeline(ctx context.Context, fn func(coordinator *pipeline.Coordinator, jobs *jobqueue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	artifacts := artifact.NewStore(db)
	jobs := jobqueue.NewStore(db, time.Duration(cfg.Workers.VisibilityTimeout)*time.Second)
	media := mediastore.New(cfg)
	coordinator := pipeline.NewCoordinator(db, artifacts, jobs, media, cfg.FFprobeBinary(), logging.NewNop())

	return fn(coordinator, jobs)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
