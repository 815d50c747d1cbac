package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dhgen/internal/generation"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	var (
		timeout    time.Duration
		output     string
		noDownload bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "monitor <job-id>",
		Short: "Reattach to a submitted job and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			logger, err := ctx.loggerValue()
			if err != nil {
				return err
			}
			orch, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			progress := newProgressRenderer(cmd.ErrOrStderr(), logger)
			res, err := orch.MonitorOnly(cmd.Context(), args[0], generation.MonitorOptions{
				Timeout:      timeout,
				AutoDownload: !noDownload,
				OutputDir:    output,
				Progress:     progress.update,
			})
			progress.finish()
			return reportResult(cmd, res, err, asJSON)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Monitoring deadline (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Download directory (default from config)")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Report the final state without downloading")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var (
		output string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Download the artifacts of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			orch, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			res, err := orch.FetchResult(cmd.Context(), args[0], output)
			return reportResult(cmd, res, err, asJSON)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Download directory (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}

// reportResult prints res when there is one and passes err through so the
// exit code reflects partial or failed outcomes.
func reportResult(cmd *cobra.Command, res *generation.Result, err error, asJSON bool) error {
	if res == nil {
		return err
	}
	if asJSON {
		if jerr := writeJSON(cmd, res); jerr != nil {
			return jerr
		}
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return err
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List locally recorded submissions",
		Long: "Jobs lists the local submission journal. The journal is a convenience record;\n" +
			"use `dhgen monitor <job-id>` to ask the server for a job's current state.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			j, err := ctx.journalValue()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if j == nil {
				fmt.Fprintln(out, "Journal disabled (journal.enabled = false)")
				return nil
			}
			entries, err := j.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.JobID,
					e.Character,
					e.State,
					humanize.Time(e.SubmittedAt),
					e.TextExcerpt,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Job", "Character", "Last state", "Submitted", "Text"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
