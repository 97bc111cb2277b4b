package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-vod/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration helpers",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "sample",
		Short: "Print a commented sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.SampleConfig())
			return nil
		},
	})
	return configCmd
}
