package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/workflow"
)

type backfillOptions struct {
	Prefix  string
	Limit   int
	Execute bool
}

type backfillResult struct {
	Found     int
	Skipped   int
	Published int
	Failed    []string
	Pending   []string
}

func newBackfillCommand(ctx *commandContext) *cobra.Command {
	var opts backfillOptions
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Publish object-created notifications for source videos that have no job",
		Long: "Lists the input bucket and, for every object whose name has no job record, " +
			"publishes the notification S3 would have sent. Runs as a dry run unless --execute is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.InputBucket == "" {
				return errors.New("no input bucket configured (INPUT_BUCKET_NAME)")
			}
			if opts.Prefix == "" {
				opts.Prefix = cfg.Storage.InputPrefix
			}
			objects, err := ctx.objects(cmd.Context())
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(cfg *config.Config, store jobs.Store) error {
				var pub publisher
				if opts.Execute {
					pub, err = ctx.dialBus(cfg)
					if err != nil {
						return err
					}
					defer pub.Close()
				}
				result, err := ctx.runBackfill(cmd.Context(), cfg, objects, store, pub, opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !opts.Execute {
					for _, key := range result.Pending {
						fmt.Fprintf(out, "would publish s3://%s/%s\n", cfg.Storage.InputBucket, key)
					}
				}
				fmt.Fprintf(out, "found=%d skipped=%d published=%d failed=%d dry_run=%s\n",
					result.Found, result.Skipped, result.Published, len(result.Failed), yesNo(!opts.Execute))
				if len(result.Failed) > 0 {
					return fmt.Errorf("%d notifications failed to publish", len(result.Failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Only consider keys under this prefix (defaults to storage.input_prefix)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of objects to examine (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Execute, "execute", false, "Actually publish notifications (disables dry-run)")
	return cmd
}

func (c *commandContext) runBackfill(ctx context.Context, cfg *config.Config, objects objectStore, store jobs.Store, pub publisher, opts backfillOptions) (*backfillResult, error) {
	logger := c.logger().With("component", "backfill")
	logger.Info("backfill starting",
		"bucket", cfg.Storage.InputBucket,
		"prefix", opts.Prefix,
		"limit", opts.Limit,
		"dry_run", !opts.Execute,
	)

	listed, err := objects.ListObjects(ctx, cfg.Storage.InputBucket, opts.Prefix, opts.Limit)
	if err != nil {
		return nil, err
	}

	result := &backfillResult{Found: len(listed)}
	for _, obj := range listed {
		stem := workflow.Stem(obj.Key)
		existing, err := store.FindByFilename(ctx, stem)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Name() == stem {
			result.Skipped++
			logger.Debug("job exists", "key", obj.Key, "job_id", existing.JobID, "status", existing.Status)
			continue
		}
		if !opts.Execute {
			result.Pending = append(result.Pending, obj.Key)
			continue
		}
		notification, err := workflow.ObjectCreatedNotification(cfg.Storage.InputBucket, obj.Key, c.now())
		if err != nil {
			return nil, err
		}
		if err := pub.PublishJSON(cfg.NATS.Subject, notification); err != nil {
			logger.Error("publish notification", "key", obj.Key, "err", err)
			result.Failed = append(result.Failed, obj.Key)
			continue
		}
		result.Published++
		logger.Info("published notification", "key", obj.Key, "subject", cfg.NATS.Subject)
	}

	logger.Info("backfill complete",
		"found", result.Found,
		"skipped", result.Skipped,
		"published", result.Published,
		"failed", len(result.Failed),
		"dry_run", !opts.Execute,
	)
	return result, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
