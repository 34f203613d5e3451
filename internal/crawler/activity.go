package crawler

import (
	"context"
	"io"
	"time"
)

// Connector model and activity constants surfaced for the host framework.
// The connector is additive: messages never change in place, so re-crawls
// only ever add documents.
const (
	ModelAdd          = "add"
	ActivityFetch     = "fetch"
	RelationshipChild = "child"
)

// SeedingActivity receives discovered document identifiers during phase 1.
// Duplicate identifiers across filter evaluations are tolerated.
type SeedingActivity interface {
	AddSeed(ctx context.Context, identifier string) error
}

// IngestionActivity receives extracted documents during phase 3.
type IngestionActivity interface {
	Ingest(ctx context.Context, identifier, version, uri string, doc *Document) error
}

// Document is the record handed to the ingestion sink: the raw message body
// plus the requested metadata fields. It is built fresh per extraction and
// not retained afterwards.
type Document struct {
	Identifier string
	Version    string
	URI        string
	Body       io.Reader
	Size       int64
	Fields     map[string][]string
}

// Window is the advisory crawl time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// JobMode says whether the host job runs once or continuously.
type JobMode int

const (
	JobModeOnce JobMode = iota
	JobModeContinuous
)

func (m JobMode) String() string {
	if m == JobModeContinuous {
		return "continuous"
	}
	return "once"
}
