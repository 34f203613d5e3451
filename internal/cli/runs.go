package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mailcrawl/internal/config"
	"mailcrawl/internal/journal"
)

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent crawl runs from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			journalPath := cfg.Crawl.JournalPath
			if journalPath == "" {
				if journalPath, err = config.DefaultJournalPath(); err != nil {
					return err
				}
			}
			jrnl, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer jrnl.Close()

			runs, err := jrnl.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tSEEDED\tINGESTED\tMISSING\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
					r.StartedAt.Local().Format(time.RFC3339),
					r.Status, r.Seeded, r.Ingested, r.Missing, r.Failed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to show")

	return cmd
}
