package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect transcoding job records",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsGetCommand(ctx))
	jobsCmd.AddCommand(newJobsFindCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter jobs.Status
			if statusFilter != "" {
				status, ok := jobs.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q (want one of %s)", statusFilter, joinStatuses(jobs.AllStatuses()))
				}
				filter = status
			}
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store jobs.Store) error {
				records, err := store.ListJobs(cmd.Context())
				if err != nil {
					return err
				}
				if filter != "" {
					kept := records[:0]
					for _, r := range records {
						if r.Status == filter {
							kept = append(kept, r)
						}
					}
					records = kept
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"jobs": records})
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{r.JobID, string(r.Status), r.Name(), r.SrcBucket + "/" + r.SrcPath, formatOutputs(r), r.CreatedAt, r.UpdatedAt})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Status", "Name", "Source", "Playlists", "Created", "Updated"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	return cmd
}

func newJobsGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <jobId>",
		Short: "Show one job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store jobs.Store) error {
				record, err := store.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				return writeJSON(cmd, record)
			})
		},
	}
}

func newJobsFindCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "find <name-prefix>",
		Short: "Find the first job whose name starts with a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(_ *config.Config, store jobs.Store) error {
				record, err := store.FindByFilename(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("no job matches %q", args[0])
				}
				return writeJSON(cmd, record)
			})
		},
	}
}

// formatOutputs counts the playlists a completed job produced.
func formatOutputs(record jobs.Record) string {
	count := 0
	for _, group := range record.OutputGroupDetails {
		count += len(group.PlaylistFilePaths)
	}
	return strconv.Itoa(count)
}

func joinStatuses(statuses []jobs.Status) string {
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}
