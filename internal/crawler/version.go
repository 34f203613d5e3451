package crawler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"mailcrawl/internal/config"
	"mailcrawl/internal/mailstore"
)

// ConstantVersion is the version token handed out under the constant
// versioning policy. Every document always carries it, so documents are
// fetched once and only re-fetched when the job's output expires them.
const ConstantVersion = "1.0"

// DocumentVersions is crawl phase 2: it assigns a version token to each
// seeded identifier. An empty token marks a document that has disappeared
// from the folder since seeding; the host should treat it as deleted.
//
// Under the constant policy no connection is made at all. The fingerprint
// policy looks each identifier up in one shared session and hashes the
// envelope together with the job's metadata selection, so a changed metadata
// selection re-versions every document.
func (c *Connector) DocumentVersions(ctx context.Context, ids []string, spec config.JobSpec) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	versions := make([]string, len(ids))
	if config.NormalizeVersioning(spec.Versioning) == config.VersioningConstant {
		for i := range versions {
			versions[i] = ConstantVersion
		}
		return versions, nil
	}

	err := c.withSession(ctx, ResolveFolder(spec.Filters), func(f mailstore.Folder) error {
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			envelopes, err := f.Search(ctx, mailstore.Criteria{Kind: mailstore.KindMessageID, Value: id})
			if err != nil {
				return err
			}
			if len(envelopes) == 0 {
				versions[i] = ""
				continue
			}
			versions[i] = Fingerprint(envelopes[0], spec.Metadata)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// Fingerprint derives a stable version token from the parts of a message
// that the crawl output depends on: size, sent date, subject and the sorted
// metadata field selection. Messages are immutable, so in practice the token
// only changes when the job configuration does.
func Fingerprint(env mailstore.Envelope, metadata []string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%d\n%d\n%s\n", env.Size, env.Date.Unix(), env.Subject)

	fields := append([]string(nil), metadata...)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		io.WriteString(h, f)
		io.WriteString(h, "\n")
	}

	return hex.EncodeToString(h.Sum(nil))
}
