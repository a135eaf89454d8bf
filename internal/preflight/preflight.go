package preflight

import (
	"context"
	"fmt"

	"clipforge/internal/config"
	"clipforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	for _, dep := range CheckSystemDeps(ctx, cfg) {
		detail := dep.Detail
		if detail == "" {
			detail = dep.Command
		}
		results = append(results, Result{
			Name:     dep.Name,
			Passed:   dep.Available,
			Optional: dep.Optional,
			Detail:   detail,
		})
	}

	if cfg.Paths.FontPath != "" {
		results = append(results, CheckFontFile(cfg.Paths.FontPath))
	}
	if cfg.Workers.MinFreeDiskMegabytes > 0 {
		results = append(results, CheckFreeDisk(cfg.Paths.OutputDir, cfg.Workers.MinFreeDiskMegabytes))
	}

	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed && !result.Optional {
			failed = append(failed, result)
		}
	}
	return failed
}

// CheckSystemDeps evaluates the external binaries the pipeline shells
// out to. Both the daemon and the CLI status command use this.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for transforms",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
	}
	return deps.CheckBinaries(requirements)
}

// Summarize renders a one-line failure summary for startup errors.
func Summarize(failed []Result) string {
	if len(failed) == 0 {
		return ""
	}
	summary := ""
	for i, result := range failed {
		if i > 0 {
			summary += "; "
		}
		summary += fmt.Sprintf("%s: %s", result.Name, result.Detail)
	}
	return summary
}
