package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mailcrawl/internal/crawler"
)

// printSeeds writes each discovered identifier to stdout, once.
type printSeeds struct {
	cmd  *cobra.Command
	seen map[string]bool
}

func (p *printSeeds) AddSeed(_ context.Context, identifier string) error {
	if p.seen[identifier] {
		return nil
	}
	p.seen[identifier] = true
	fmt.Fprintln(p.cmd.OutOrStdout(), identifier)
	return nil
}

func newSeedCmd() *cobra.Command {
	var since, before string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "List the message identifiers the job filters would crawl",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			window, err := parseWindow(since, before)
			if err != nil {
				return err
			}

			conn := crawler.New(crawler.WithLogger(logger))
			if err := conn.Connect(cfg.Endpoint); err != nil {
				return err
			}
			defer conn.Disconnect()

			sink := &printSeeds{cmd: cmd, seen: map[string]bool{}}
			return conn.AddSeedDocuments(cmd.Context(), sink, cfg.Job, window, crawler.JobModeOnce)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only seed messages sent at or after this time")
	cmd.Flags().StringVar(&before, "before", "", "Only seed messages sent before this time")

	return cmd
}
