package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"portsweep/api"
	"portsweep/config"
	"portsweep/logging"
)

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "portsweep-api",
		Short:         "Serve full-range TCP port scans over HTTP",
		Long:          "portsweep-api exposes the portsweep scanner as a REST API protected by an API key and a Redis-backed rate limit.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			if _, err := logging.Configure(logging.Options{
				Level:      level,
				Output:     cfg.Log.Output,
				File:       cfg.Log.File,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
			}); err != nil {
				return err
			}

			return api.Run(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
