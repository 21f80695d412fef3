package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flemzord/dbpurge/internal/checkpoint"
	"github.com/flemzord/dbpurge/internal/job"
	"github.com/flemzord/dbpurge/pkg/app"
)

// defaultLogRetention is the age of the default log-purge cutoff.
const defaultLogRetention = 32 * 24 * time.Hour

// confirm asks before a destructive action unless --yes was given.
func confirm(cmd *cobra.Command, title, description string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge analytics data, dumping every removed row first",
	}
	cmd.AddCommand(purgeSiteCmd(), purgeLogsCmd())
	return cmd
}

func purgeSiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site <id>",
		Short: "Remove a site and all its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid site id %q", args[0])
			}
			ok, err := confirm(cmd,
				fmt.Sprintf("Purge site %d?", id),
				"Every row of the site is dumped to the backup directory, then deleted.")
			if err != nil || !ok {
				return err
			}
			return runJob(cmd, checkpoint.KindSitePurge, checkpoint.Config{SiteID: id})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func purgeLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Remove raw log records older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, _ := cmd.Flags().GetString("until")
			until, err := parseUntil(raw, time.Now())
			if err != nil {
				return err
			}
			ok, err := confirm(cmd,
				"Purge raw logs before "+until.Format(time.DateOnly)+"?",
				"Matching records are dumped to the backup directory, then deleted.")
			if err != nil || !ok {
				return err
			}
			return runJob(cmd, checkpoint.KindLogPurge, checkpoint.Config{Until: until})
		},
	}
	cmd.Flags().String("until", "", "Cutoff date, RFC 3339 or YYYY-MM-DD (default: 32 days ago)")
	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// parseUntil reads the log-purge cutoff. Empty means 32 days before now,
// truncated to midnight UTC.
func parseUntil(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC().Add(-defaultLogRetention).Truncate(24 * time.Hour), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --until %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func optimizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Optimize the analytics tables, one table per step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, checkpoint.KindOptimize, checkpoint.Config{})
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Continue the job left by an interrupted run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			st, err := e.Store.Current(cmd.Context())
			if errors.Is(err, checkpoint.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No active job.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resuming %s job (phase %s)\n", st.Kind, st.Phase)
			return drive(cmd, e, st.Token)
		},
	}
}

// runJob creates a job of the given kind and steps it to completion.
func runJob(cmd *cobra.Command, kind checkpoint.Kind, cfg checkpoint.Config) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	token, err := e.Dispatcher.Create(cmd.Context(), kind, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Started %s job %s\n", kind, token)
	return drive(cmd, e, token)
}

// drive steps the job until it finishes, printing one line per step. A
// finished job's checkpoint is cleared; an interrupted one is kept for
// resume.
func drive(cmd *cobra.Command, e *app.Engine, token string) error {
	out := cmd.OutOrStdout()
	start := time.Now()

	st, err := e.Dispatcher.Drive(cmd.Context(), token, job.DriveOptions{}, func(st job.Status) {
		printStep(out, st)
	})
	if err != nil {
		if !errors.Is(err, job.ErrConcurrencyViolation) {
			fmt.Fprintln(out, "Job interrupted; run `dbpurge resume` to continue.")
		}
		return err
	}

	fmt.Fprintf(out, "Finished %s job: %d steps in %s\n",
		st.Kind, st.StepsDone, time.Since(start).Round(time.Millisecond))
	return e.Dispatcher.Reset(cmd.Context())
}

func printStep(w io.Writer, st job.Status) {
	line := fmt.Sprintf("%-13s %3d%%  %d/%d steps", st.Phase, st.Progress, st.StepsDone, st.StepsPlanned)
	if st.Limit > 0 {
		line += "  chunk " + humanize.Comma(int64(st.Limit))
	}
	if st.Throttled {
		line += "  (throttled)"
	}
	if st.Error != "" {
		line += "  error: " + st.Error
	}
	fmt.Fprintln(w, line)
}
