package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flemzord/dbpurge/internal/config"
	"github.com/flemzord/dbpurge/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and print a redacted summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				resolved, err := app.ResolveConfigPath()
				if err != nil {
					return err
				}
				path = resolved
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			_, redactor := app.Secrets(cfg)

			out := cmd.OutOrStdout()
			ids := config.Resolve(cfg, cfg.Gateway.Kind != 0)
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintf(out, "Database: %s %s\n", cfg.Database.Driver, redactor.Redact(cfg.Database.DSN))
			if s := cfg.Schedule.Sweep; s != "" {
				fmt.Fprintf(out, "Checkpoint sweep: %s\n", s)
			}
			if r := cfg.Schedule.Retention; r.Enabled() {
				fmt.Fprintf(out, "Log retention: %d days (%s)\n", r.KeepDays, r.Schedule)
			}
			if cfg.Telemetry.OTLPEndpoint != "" {
				fmt.Fprintf(out, "Tracing: %s\n", cfg.Telemetry.OTLPEndpoint)
			}
			return nil
		},
	})
	return cmd
}
