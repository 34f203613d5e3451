package crawler

import (
	"context"

	"go.uber.org/zap"

	"mailcrawl/internal/config"
	"mailcrawl/internal/mailstore"
)

// AddSeedDocuments is crawl phase 1: it evaluates each job filter against
// the configured folder and reports every matching message identifier to the
// seeding sink. Each filter runs in its own session cycle, so a failure in
// one filter never leaves a connection behind.
func (c *Connector) AddSeedDocuments(ctx context.Context, activities SeedingActivity, spec config.JobSpec, window Window, mode JobMode) error {
	folder := ResolveFolder(spec.Filters)
	for _, crit := range TranslateFilters(spec.Filters, window) {
		err := c.withSession(ctx, folder, func(f mailstore.Folder) error {
			envelopes, err := f.Search(ctx, crit)
			if err != nil {
				return err
			}
			for _, env := range envelopes {
				if err := activities.AddSeed(ctx, env.MessageID); err != nil {
					return err
				}
			}
			c.logger.Debug("seeded filter",
				zap.String("folder", f.Name()),
				zap.String("criteria", crit.String()),
				zap.Stringer("mode", mode),
				zap.Int("matches", len(envelopes)))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
