package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailcrawl/internal/config"
	"mailcrawl/internal/crawler"
	"mailcrawl/internal/journal"
)

// pollInterval is how often the scheduler nudges the connector's liveness
// poll so idle sessions get released between crawls.
const pollInterval = 30 * time.Second

func newRunCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl continuously on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if schedule == "" {
				schedule = cfg.Crawl.Schedule
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

			conn := crawler.New(crawler.WithLogger(logger))
			if err := conn.Connect(cfg.Endpoint); err != nil {
				return err
			}
			defer conn.Disconnect()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Crawls are serialized: a tick that fires while the previous
			// crawl is still running is skipped.
			sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			_, err = sched.AddFunc(schedule, func() {
				sum, err := crawlOnce(ctx, conn, jrnl, cfg, crawler.Window{}, crawler.JobModeContinuous, false)
				if err != nil {
					logger.Error("crawl failed", zap.Error(err))
					return
				}
				logger.Info("crawl finished",
					zap.Int("seeded", sum.Seeded),
					zap.Int("ingested", sum.Ingested),
					zap.Int("scanned", sum.Scanned),
					zap.Int("missing", sum.Missing),
					zap.Int("failed", sum.Failed))
			})
			if err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			sched.Start()
			defer func() { <-sched.Stop().Done() }()

			logger.Info("scheduler started", zap.String("schedule", schedule))

			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					return nil
				case <-ticker.C:
					conn.Poll()
				}
			}
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule (defaults to crawl.schedule from config)")

	return cmd
}
