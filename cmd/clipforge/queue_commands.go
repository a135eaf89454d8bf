package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/jobqueue"
	"clipforge/internal/pipeline"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the transform queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd.Context(), func(_ *pipeline.Coordinator, jobs *jobqueue.Store) error {
				counts, err := jobs.Counts(cmd.Context())
				if err != nil {
					return err
				}

				total := 0
				rows := make([][]string, 0, len(counts))
				for _, state := range []jobqueue.State{jobqueue.StatePending, jobqueue.StateActive, jobqueue.StateCompleted, jobqueue.StateFailed} {
					count := counts[state]
					total += count
					if count == 0 {
						continue
					}
					rows = append(rows, []string{string(state), strconv.Itoa(count)})
				}
				if total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStates []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transform jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []jobqueue.State
			for _, value := range listStates {
				state, ok := jobqueue.ParseState(value)
				if !ok {
					return fmt.Errorf("unknown job state %q", value)
				}
				states = append(states, state)
			}

			return ctx.withPipeline(cmd.Context(), func(_ *pipeline.Coordinator, jobs *jobqueue.Store) error {
				items, err := jobs.List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, job := range items {
					rows = append(rows, []string{
						job.ID,
						job.ArtifactID,
						string(job.Kind),
						string(job.State),
						strconv.Itoa(job.Attempts),
						job.ErrorMessage,
					})
				}
				table := renderTable(
					[]string{"Job", "Video", "Kind", "State", "Attempts", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStates, "state", "s", nil, "Filter by job state (repeatable)")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd.Context(), func(_ *pipeline.Coordinator, jobs *jobqueue.Store) error {
				removed, err := jobs.ClearTerminal(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d settled jobs\n", removed)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <videoID...>",
		Short: "Requeue failed videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(cmd.Context(), func(coordinator *pipeline.Coordinator, _ *jobqueue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					jobID, err := coordinator.RetryFailed(cmd.Context(), id)
					if err != nil {
						fmt.Fprintf(out, "Video %s: %v\n", id, err)
						continue
					}
					fmt.Fprintf(out, "Video %s requeued as job %s\n", id, jobID)
				}
				return nil
			})
		},
	}
}
