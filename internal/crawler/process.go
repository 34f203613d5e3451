package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mailcrawl/internal/config"
	"mailcrawl/internal/mailstore"
)

// ProcessSummary counts what happened to each document in a batch.
type ProcessSummary struct {
	Ingested int
	Scanned  int
	Missing  int
	Failed   int
}

// ProcessDocuments is crawl phase 3: it fetches each document in the batch,
// extracts the job's metadata selection, and hands the result to the
// ingestion sink. The whole batch shares one session cycle.
//
// A document that has vanished since versioning is skipped. A document whose
// fetch or extraction fails for a non-transient reason is logged and counted
// as failed without aborting the batch; transport interruptions abort so the
// host can retry. Entries flagged in scanOnly are fetched and extracted but
// never ingested.
func (c *Connector) ProcessDocuments(ctx context.Context, activities IngestionActivity, spec config.JobSpec, ids, versions []string, scanOnly []bool) (ProcessSummary, error) {
	var sum ProcessSummary
	if len(ids) == 0 {
		return sum, nil
	}
	if len(versions) != len(ids) {
		return sum, fmt.Errorf("process documents: %d identifiers but %d versions", len(ids), len(versions))
	}

	err := c.withSession(ctx, ResolveFolder(spec.Filters), func(f mailstore.Folder) error {
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}

			msg, err := f.Fetch(ctx, id)
			if errors.Is(err, mailstore.ErrMessageNotFound) {
				c.logger.Debug("message gone, skipping", zap.String("id", id))
				sum.Missing++
				continue
			}
			if err != nil {
				if mailstore.IsInterruption(err) {
					return err
				}
				c.logger.Warn("fetch failed", zap.String("id", id), zap.Error(err))
				sum.Failed++
				continue
			}

			doc, err := buildDocument(msg, versions[i], spec.Metadata)
			if err != nil {
				c.logger.Warn("extraction failed", zap.String("id", id), zap.Error(err))
				sum.Failed++
				continue
			}

			if scanOnly != nil && scanOnly[i] {
				sum.Scanned++
				continue
			}
			if err := activities.Ingest(ctx, id, versions[i], doc.URI, doc); err != nil {
				return err
			}
			sum.Ingested++
		}
		return nil
	})
	return sum, err
}

// DocumentURI derives the display URI for a message: the subject followed by
// the bracketed identifier, e.g. `Quarterly invoice<abc@example.com>`.
func DocumentURI(subject, id string) string {
	return subject + "<" + id + ">"
}

func buildDocument(msg *mailstore.FullMessage, version string, metadata []string) (*Document, error) {
	fields, err := extractFields(msg, metadata)
	if err != nil {
		return nil, err
	}

	size := msg.Size
	if size == 0 {
		size = int64(len(msg.Raw))
	}

	return &Document{
		Identifier: msg.MessageID,
		Version:    version,
		URI:        DocumentURI(msg.Subject, msg.MessageID),
		Body:       bytes.NewReader(msg.Raw),
		Size:       size,
		Fields:     fields,
	}, nil
}
