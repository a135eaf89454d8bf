package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch status: %w (is the daemon running?)", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			runningKind := statusOK
			if !status.Running {
				runningKind = statusError
			}
			fmt.Fprintln(out, renderStatusLine("Running", runningKind, yesNo(status.Running), colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, strconv.Itoa(status.Workers), colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, state := range []string{"pending", "active", "completed", "failed"} {
				kind := statusInfo
				if state == "failed" && status.JobCounts[state] > 0 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(state, kind, strconv.Itoa(status.JobCounts[state]), colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, dep := range status.Dependencies {
				kind := statusOK
				message := dep.Command
				if !dep.Available {
					kind = statusError
					if dep.Optional {
						kind = statusWarn
					}
					message = dep.Detail
				}
				fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
			}
			return nil
		},
	}
}
