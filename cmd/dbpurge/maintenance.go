package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/dbpurge/pkg/app"
)

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Inspect or run the scheduled maintenance jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the configured maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			sched, n, err := app.NewScheduler(e)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No maintenance jobs configured.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSCHEDULE")
			for _, j := range sched.Jobs() {
				fmt.Fprintf(tw, "%s\t%s\n", j.Name, j.Schedule)
			}
			return tw.Flush()
		},
	}, &cobra.Command{
		Use:   "run <name>",
		Short: "Run one maintenance job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			sched, _, err := app.NewScheduler(e)
			if err != nil {
				return err
			}
			if err := sched.RunNow(cmd.Context(), args[0]); err != nil {
				return err
			}
			for _, j := range sched.Jobs() {
				if j.Name == args[0] {
					fmt.Fprintf(cmd.OutOrStdout(), "%s completed in %s\n", j.Name, j.LastDuration.Round(time.Millisecond))
				}
			}
			return nil
		},
	})
	return cmd
}
