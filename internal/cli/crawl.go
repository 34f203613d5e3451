package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailcrawl/internal/config"
	"mailcrawl/internal/crawler"
	"mailcrawl/internal/journal"
)

// journalSeeds feeds phase 1 results into the journal while keeping the
// deduplicated discovery order for the later phases.
type journalSeeds struct {
	jrnl  *journal.Journal
	runID string
	seen  map[string]bool
	ids   []string
}

func (s *journalSeeds) AddSeed(ctx context.Context, identifier string) error {
	if s.seen[identifier] {
		return nil
	}
	s.seen[identifier] = true
	s.ids = append(s.ids, identifier)
	return s.jrnl.AddSeed(ctx, s.runID, identifier)
}

// journalIngest writes phase 3 results into the journal's documents table.
type journalIngest struct {
	jrnl  *journal.Journal
	runID string
}

func (s *journalIngest) Ingest(ctx context.Context, identifier, version, uri string, doc *crawler.Document) error {
	return s.jrnl.RecordDocument(ctx, s.runID, journal.DocumentRecord{
		MessageID: identifier,
		Version:   version,
		URI:       uri,
		Size:      doc.Size,
		Fields:    doc.Fields,
	})
}

// crawlOnce runs the full three-phase pipeline against an already-connected
// connector: seed, version, then fetch and ingest in batches. Documents
// whose stored version is unchanged are skipped; documents that vanished
// since the last run are dropped from the journal.
func crawlOnce(ctx context.Context, conn *crawler.Connector, jrnl *journal.Journal, cfg config.Config, window crawler.Window, mode crawler.JobMode, scanOnly bool) (journal.RunSummary, error) {
	var sum journal.RunSummary

	runID, err := jrnl.BeginRun(ctx)
	if err != nil {
		return sum, err
	}

	runErr := func() error {
		seeds := &journalSeeds{jrnl: jrnl, runID: runID, seen: map[string]bool{}}
		if err := conn.AddSeedDocuments(ctx, seeds, cfg.Job, window, mode); err != nil {
			return fmt.Errorf("seeding: %w", err)
		}
		sum.Seeded = len(seeds.ids)

		ingest := &journalIngest{jrnl: jrnl, runID: runID}
		batchSize := conn.MaxDocumentRequest()

		for start := 0; start < len(seeds.ids); start += batchSize {
			end := start + batchSize
			if end > len(seeds.ids) {
				end = len(seeds.ids)
			}
			batch := seeds.ids[start:end]

			versions, err := conn.DocumentVersions(ctx, batch, cfg.Job)
			if err != nil {
				return fmt.Errorf("versioning: %w", err)
			}
			stored, err := jrnl.StoredVersions(ctx, batch)
			if err != nil {
				return err
			}

			var processIDs, processVersions []string
			for i, id := range batch {
				switch {
				case versions[i] == "":
					// Vanished between seeding and versioning.
					if err := jrnl.DeleteDocument(ctx, id); err != nil {
						return err
					}
					sum.Missing++
				case !scanOnly && stored[id] == versions[i]:
					// Already ingested at this version.
				default:
					processIDs = append(processIDs, id)
					processVersions = append(processVersions, versions[i])
				}
			}
			if len(processIDs) == 0 {
				continue
			}

			var scanFlags []bool
			if scanOnly {
				scanFlags = make([]bool, len(processIDs))
				for i := range scanFlags {
					scanFlags[i] = true
				}
			}

			psum, err := conn.ProcessDocuments(ctx, ingest, cfg.Job, processIDs, processVersions, scanFlags)
			sum.Ingested += psum.Ingested
			sum.Scanned += psum.Scanned
			sum.Missing += psum.Missing
			sum.Failed += psum.Failed
			if err != nil {
				return fmt.Errorf("processing: %w", err)
			}
		}
		return nil
	}()

	if err := jrnl.FinishRun(ctx, runID, sum, runErr); err != nil {
		logger.Warn("failed to finalize run record", zap.String("run_id", runID), zap.Error(err))
	}
	return sum, runErr
}

func newCrawlCmd() *cobra.Command {
	var since, before string
	var scanOnly bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl: seed, version, fetch and ingest into the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			window, err := parseWindow(since, before)
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

			conn := crawler.New(crawler.WithLogger(logger))
			if err := conn.Connect(cfg.Endpoint); err != nil {
				return err
			}
			defer conn.Disconnect()

			sum, err := crawlOnce(cmd.Context(), conn, jrnl, cfg, window, crawler.JobModeOnce, scanOnly)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Seeded %d, ingested %d, scanned %d, missing %d, failed %d\n",
				sum.Seeded, sum.Ingested, sum.Scanned, sum.Missing, sum.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only crawl messages sent at or after this time")
	cmd.Flags().StringVar(&before, "before", "", "Only crawl messages sent before this time")
	cmd.Flags().BoolVar(&scanOnly, "scan-only", false, "Fetch and extract but do not ingest")

	return cmd
}
