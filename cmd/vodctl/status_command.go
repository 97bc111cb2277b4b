package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/workflow"
	"github.com/tendant/simple-vod/pkg/schema"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var errorCode int
	var errorMessage string
	cmd := &cobra.Command{
		Use:   "status <jobId> <STATUS>",
		Short: "Publish a job state change onto the bus",
		Long: "Publishes the event MediaConvert would emit for a job, so pipelines without " +
			"EventBridge can drive records through their lifecycle.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := jobs.ParseStatus(args[1])
			if !ok || status == jobs.StatusSubmitted {
				return fmt.Errorf("status must be one of %s (got %q)", joinStatuses(reportableStatuses()), args[1])
			}
			change := schema.JobStateChange{JobID: args[0], Status: string(status)}
			if status == jobs.StatusError {
				change.ErrorCode = errorCode
				change.ErrorMessage = errorMessage
			}
			event, err := workflow.StateChangeEvent(change, ctx.now())
			if err != nil {
				return err
			}
			return ctx.withBus(func(cfg *config.Config, pub publisher) error {
				if err := pub.PublishJSON(cfg.NATS.Subject, event); err != nil {
					return fmt.Errorf("publish state change: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s for job %s on %s\n", status, args[0], cfg.NATS.Subject)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&errorCode, "error-code", 0, "Error code for ERROR")
	cmd.Flags().StringVar(&errorMessage, "error-message", "", "Error message for ERROR")
	return cmd
}

// reportableStatuses are the statuses a state change may carry.
func reportableStatuses() []jobs.Status {
	var out []jobs.Status
	for _, status := range jobs.AllStatuses() {
		if status != jobs.StatusSubmitted {
			out = append(out, status)
		}
	}
	return out
}
