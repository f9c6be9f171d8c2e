package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"danmu/internal/api"
	"danmu/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Inspect and cancel background jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsWaitCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var kind string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				jobs, err := client.ListJobs(cmd.Context(), apiclient.ListQuery{
					Statuses: statuses,
					Kind:     kind,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderJobTable(jobs, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Filter by job kind")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				job, err := client.GetJob(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>...",
		Short: "Cancel running or pending jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				out := cmd.OutOrStdout()
				var failed int
				for _, id := range ids {
					_, err := client.CancelJob(cmd.Context(), id)
					switch {
					case err == nil:
						fmt.Fprintf(out, "Job %d cancellation requested\n", id)
					case errors.Is(err, apiclient.ErrConflict):
						fmt.Fprintf(out, "Job %d is not active\n", id)
					case apiclient.IsAPIUnavailable(err):
						return err
					default:
						failed++
						fmt.Fprintf(out, "Job %d: %v\n", id, err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d cancellation(s) failed", failed)
				}
				return nil
			})
		},
	}
}

func newJobsWaitCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Follow a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				return followJob(cmd, client, ids[0], interval)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	return cmd
}

// followJob prints each progress change and returns an error when the job fails.
func followJob(cmd *cobra.Command, client *apiclient.Client, id int64, interval time.Duration) error {
	out := cmd.OutOrStdout()
	var last string
	job, err := client.Await(cmd.Context(), id, interval, func(job api.Job) {
		line := fmt.Sprintf("[%s] %s %s", formatPercent(job.Progress.Percent), job.Status, job.Progress.Message)
		if line != last {
			fmt.Fprintln(out, strings.TrimSpace(line))
			last = line
		}
	})
	if err != nil {
		return err
	}
	if job.Status == "failed" {
		return fmt.Errorf("job %d failed: %s", job.ID, job.Error)
	}
	return nil
}

func printJob(out io.Writer, job api.Job) {
	colorize := shouldColorize(out)
	rows := [][2]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Kind", job.Kind},
		{"Title", job.Title},
		{"Status", colorStatus(job.Status, colorize)},
		{"Progress", formatPercent(job.Progress.Percent)},
		{"Message", job.Progress.Message},
		{"Result", job.Result},
		{"Error", job.Error},
		{"Unique key", job.UniqueKey},
		{"Correlation", job.CorrelationID},
		{"Created", shortTime(job.CreatedAt)},
		{"Started", shortTime(job.StartedAt)},
		{"Finished", shortTime(job.FinishedAt)},
		{"Heartbeat", shortTime(job.LastHeartbeat)},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		fmt.Fprintf(out, "%-12s %s\n", row[0]+":", row[1])
	}
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
