package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-vod/internal/app"
)

func newSignCookiesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sign-cookies",
		Short: "Issue CloudFront signed cookies for the configured domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateSigning(); err != nil {
				return err
			}
			awsCfg, err := ctx.awsConfig(cmd.Context())
			if err != nil {
				return err
			}
			s, err := app.NewSigner(cmd.Context(), cfg, awsCfg)
			if err != nil {
				return err
			}
			s.Now = ctx.now
			cookies, err := s.Sign(cfg.CDN.Domain)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, cookies)
			}
			rows := [][]string{
				{"CloudFront-Policy", cookies.Credentials.Policy},
				{"CloudFront-Key-Pair-Id", cookies.Credentials.KeyPairID},
				{"CloudFront-Signature", cookies.Credentials.Signature},
				{"Expires", time.Unix(cookies.Expiration, 0).UTC().Format(time.RFC3339) + " (" + strconv.FormatInt(cookies.Expiration, 10) + ")"},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Cookie", "Value"}, rows, nil))
			fmt.Fprintf(cmd.OutOrStdout(), "https://%s/<path>?Policy=%s&Signature=%s&Key-Pair-Id=%s\n",
				cfg.CDN.Domain, cookies.Credentials.Policy, cookies.Credentials.Signature, cookies.Credentials.KeyPairID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
