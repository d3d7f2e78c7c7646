package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/journal"
	"github.com/spf13/cobra"
)

var (
	journalFilter  journal.Filter
	journalSummary bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List journaled transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if !cfg.Journal.Enabled {
			return fmt.Errorf("journal is not enabled in config")
		}

		ctx, cancel := signalContext()
		defer cancel()

		store := journal.NewStore(log, &cfg.Journal, journalFilter.JobID)
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("starting journal: %w", err)
		}

		defer func() { _ = store.Stop() }()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer func() { _ = w.Flush() }()

		if journalSummary {
			if journalFilter.JobID == "" {
				return fmt.Errorf("--summary requires --job")
			}

			counts, err := store.Summarize(ctx, journalFilter.JobID)
			if err != nil {
				return err
			}

			fmt.Fprintln(w, "OPERATION\tOUTCOME\tCOUNT")

			for _, c := range counts {
				fmt.Fprintf(w, "%s\t%s\t%d\n", c.Operation, c.Outcome, c.Count)
			}

			return nil
		}

		transfers, err := store.ListTransfers(ctx, journalFilter)
		if err != nil {
			return err
		}

		fmt.Fprintln(w, "TIME\tJOB\tDEPLOYMENT\tOPERATION\tTARGET\tOUTCOME\tREASON")

		for _, t := range transfers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.CreatedAt.Format(time.RFC3339), t.JobID, t.Deployment,
				t.Operation, t.Target, t.Outcome, t.Reason)
		}

		return nil
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalFilter.JobID, "job", "", "only show transfers of this job")
	journalCmd.Flags().StringVar(&journalFilter.Operation, "op", "", "only show this operation")
	journalCmd.Flags().StringVar(&journalFilter.Outcome, "outcome", "", "only show this outcome")
	journalCmd.Flags().IntVar(&journalFilter.Limit, "limit", 50, "maximum number of transfers")
	journalCmd.Flags().BoolVar(&journalSummary, "summary", false, "count transfers per operation and outcome")

	rootCmd.AddCommand(journalCmd)
}
