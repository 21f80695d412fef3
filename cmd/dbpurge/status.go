package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/job"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active job and the resource budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			st, err := e.Dispatcher.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			return printStatus(cmd, st)
		},
	}
	cmd.Flags().Bool("json", false, "Print the status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, st job.Status) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if st.Kind == checkpoint.KindNone {
		fmt.Fprintln(tw, "Job:\tnone")
	} else {
		fmt.Fprintf(tw, "Job:\t%s\n", st.Kind)
		fmt.Fprintf(tw, "Phase:\t%s\n", st.Phase)
		fmt.Fprintf(tw, "Progress:\t%d%% (%d/%d steps)\n", st.Progress, st.StepsDone, st.StepsPlanned)
		if st.LowResourceStreak > 0 {
			fmt.Fprintf(tw, "Low-resource streak:\t%d\n", st.LowResourceStreak)
		}
	}
	r := st.Resources
	fmt.Fprintf(tw, "Memory:\t%s used of %s (%s available)\n",
		humanize.IBytes(uint64(max(r.MemoryUsage, 0))),
		humanize.IBytes(uint64(max(r.MemoryLimit, 0))),
		humanize.IBytes(uint64(max(r.MemoryAvailable, 0))))
	fmt.Fprintf(tw, "Execution window:\t%s\n", r.ExecutionWindow)
	return tw.Flush()
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard the active job's checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := confirm(cmd, "Discard the active job?",
				"Rows already purged stay purged; the job cannot be resumed afterwards.")
			if err != nil || !ok {
				return err
			}
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if err := e.Dispatcher.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Job state cleared.")
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func backupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect the dump artifacts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backup files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			artifacts, err := e.Backups.List()
			if err != nil {
				return err
			}
			if len(artifacts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
			for _, a := range artifacts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name, humanize.IBytes(uint64(a.Size)), humanize.Time(a.Modified))
			}
			return tw.Flush()
		},
	})
	return cmd
}
