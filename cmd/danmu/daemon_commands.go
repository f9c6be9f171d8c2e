package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"danmu/internal/apiclient"
	"danmu/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the danmu daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if bind, _, _ := ctx.apiAddress(); bind != cfg.Paths.APIBind {
				cfg.Paths.APIBind = bind
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in every log line")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				runKind := statusOK
				if !status.Running {
					runKind = statusError
				}
				fmt.Fprintln(out, renderStatusLine("Running", runKind, yesNo(status.Running), colorize))
				fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.Database, colorize))
				providerKind := statusOK
				if len(status.Providers) == 0 {
					providerKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Providers", providerKind, strings.Join(status.Providers, ", "), colorize))
				fmt.Fprintln(out)

				for _, line := range renderSectionHeader("Workflow", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, strconv.Itoa(status.Workflow.Workers), colorize))
				fmt.Fprintln(out, renderStatusLine("Active jobs", statusInfo, formatIDs(status.Workflow.ActiveJobs), colorize))
				fmt.Fprintln(out)

				if len(status.Checks) > 0 {
					for _, line := range renderSectionHeader("Checks", colorize) {
						fmt.Fprintln(out, line)
					}
					for _, check := range status.Checks {
						kind := statusOK
						if !check.Passed {
							kind = statusError
						}
						fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
					}
					fmt.Fprintln(out)
				}

				rows := queueStatRows(status.Workflow.QueueStats)
				fmt.Fprint(out, renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status document")
	return cmd
}

var statusOrder = map[string]int{"pending": 0, "running": 1, "paused": 2, "success": 3, "failed": 4}

func queueStatRows(stats map[string]int) [][]string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return statusOrder[names[i]] < statusOrder[names[j]]
	})
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(stats[name])})
	}
	return rows
}

func formatIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, "#"+strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, " ")
}
