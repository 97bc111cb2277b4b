package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-vod/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var opts upload.UploadOptions
	var bucket string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a source video to the input bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bucket == "" {
				bucket = cfg.Storage.InputBucket
			}
			if bucket == "" {
				return errors.New("no input bucket configured (INPUT_BUCKET_NAME or --bucket)")
			}
			if opts.Prefix == "" {
				opts.Prefix = cfg.Storage.InputPrefix
			}
			objects, err := ctx.objects(cmd.Context())
			if err != nil {
				return err
			}
			result, err := objects.UploadFile(cmd.Context(), bucket, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded s3://%s/%s (%s, %d bytes)\n", result.Bucket, result.Key, result.MimeType, result.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket (defaults to storage.input_bucket)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "Object key (defaults to prefix + file name)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Key prefix (defaults to storage.input_prefix)")
	cmd.Flags().StringVar(&opts.MimeType, "content-type", "", "Content type (detected when empty)")
	return cmd
}
