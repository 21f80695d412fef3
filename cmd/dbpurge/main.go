// Package main is the entry point for the dbpurge CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/dbpurge/internal/core"
	"github.com/flemzord/dbpurge/pkg/app"

	_ "github.com/flemzord/dbpurge/modules/checkpoint/memory"
	_ "github.com/flemzord/dbpurge/modules/checkpoint/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbpurge",
		Short:         "Resumable, resource-aware purges of an analytics database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Override the data directory")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		serveCmd(),
		serviceCmd(),
		configCmd(),
		purgeCmd(),
		optimizeCmd(),
		resumeCmd(),
		statusCmd(),
		resetCmd(),
		backupsCmd(),
		maintenanceCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dbpurge %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

// engineParams reads the persistent flags shared by every command.
func engineParams(cmd *cobra.Command) (app.Params, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return app.Params{}, fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	return app.Params{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		LogOutput:  cmd.ErrOrStderr(),
	}, nil
}

// openEngine opens the engine for a one-shot command. The caller closes it.
func openEngine(cmd *cobra.Command) (*app.Engine, error) {
	params, err := engineParams(cmd)
	if err != nil {
		return nil, err
	}
	return app.Open(cmd.Context(), params)
}
