package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/api"
	"clipforge/internal/jobqueue"
	"clipforge/internal/pipeline"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file>",
		Short: "Import a local video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			return ctx.withPipeline(cmd.Context(), func(coordinator *pipeline.Coordinator, _ *jobqueue.Store) error {
				art, err := coordinator.IngestFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s as %s\n", filepath.Base(path), art.ID)
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List video artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Videos(cmd.Context())
			if err != nil {
				return err
			}
			if len(resp.Artifacts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No videos")
				return nil
			}

			rows := make([][]string, 0, len(resp.Artifacts))
			for _, art := range resp.Artifacts {
				rows = append(rows, []string{
					art.ID,
					art.Status,
					formatDuration(art.DurationSeconds),
					art.CreatedAt,
				})
			}
			table := renderTable(
				[]string{"ID", "Status", "Duration", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <videoID>",
		Short: "Show one video with its job history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Video(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			art := resp.Artifact
			fmt.Fprintf(out, "ID:       %s\n", art.ID)
			fmt.Fprintf(out, "Status:   %s\n", art.Status)
			fmt.Fprintf(out, "Duration: %s\n", formatDuration(art.DurationSeconds))
			fmt.Fprintf(out, "Source:   %s\n", art.SourcePath)
			fmt.Fprintf(out, "Current:  %s\n", art.CurrentPath)
			if art.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", art.ErrorMessage)
			}

			if len(resp.Jobs) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(resp.Jobs))
			for _, job := range resp.Jobs {
				rows = append(rows, []string{
					job.ID,
					job.Kind,
					job.State,
					strconv.Itoa(job.Attempts),
					job.ErrorMessage,
				})
			}
			table := renderTable(
				[]string{"Job", "Kind", "State", "Attempts", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}

func newTrimCommand(ctx *commandContext) *cobra.Command {
	var start, end float64

	cmd := &cobra.Command{
		Use:   "trim <videoID>",
		Short: "Queue a trim transform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			accepted, err := client.Trim(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			printAccepted(cmd, accepted)
			return nil
		},
	}

	cmd.Flags().Float64Var(&start, "start", 0, "Trim window start in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Trim window end in seconds")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newSubtitlesCommand(ctx *commandContext) *cobra.Command {
	var text string
	var start, end float64

	cmd := &cobra.Command{
		Use:   "subtitles <videoID>",
		Short: "Queue a subtitle overlay transform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			accepted, err := client.Subtitles(cmd.Context(), args[0], text, start, end)
			if err != nil {
				return err
			}
			printAccepted(cmd, accepted)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Subtitle text to overlay")
	cmd.Flags().Float64Var(&start, "start", 0, "Overlay start in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Overlay end in seconds")
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "render <videoID>",
		Short: "Queue a final render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			accepted, err := client.Render(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAccepted(cmd, accepted)
			return nil
		},
	}
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <videoID>",
		Short: "Download the video's current bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				target = args[0] + ".mp4"
			}
			file, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			defer file.Close()

			name, err := client.Download(cmd.Context(), args[0], file)
			if err != nil {
				os.Remove(target)
				return err
			}
			if err := file.Close(); err != nil {
				os.Remove(target)
				return err
			}

			if name != "" && output == "" {
				renamed := filepath.Join(filepath.Dir(target), name)
				if renameErr := os.Rename(target, renamed); renameErr == nil {
					target = renamed
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file path")
	return cmd
}

func printAccepted(cmd *cobra.Command, accepted *api.TransformResponse) {
	fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s; video %s is now %s\n",
		accepted.JobID, accepted.Artifact.ID, accepted.Artifact.Status)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return strconv.FormatFloat(seconds, 'f', 1, 64) + "s"
}
