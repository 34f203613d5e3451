package crawler

import (
	"strings"

	"mailcrawl/internal/config"
	"mailcrawl/internal/mailstore"
)

// ResolveFolder picks the folder the job crawls. When several folder filters
// are present the last one wins; an empty result means the backend's default.
func ResolveFolder(filters []config.Filter) string {
	folder := ""
	for _, f := range filters {
		if strings.EqualFold(f.Name, config.FilterFolder) {
			folder = f.Value
		}
	}
	return folder
}

// TranslateFilters turns the job's non-folder filters into search criteria,
// one per filter. Filters are a union: each criterion is evaluated in its
// own search pass. With no content filters at all the whole folder is
// crawled, bounded by the advisory time window.
func TranslateFilters(filters []config.Filter, w Window) []mailstore.Criteria {
	var crits []mailstore.Criteria
	for _, f := range filters {
		switch strings.ToLower(f.Name) {
		case config.FilterSubject:
			crits = append(crits, mailstore.Criteria{Kind: mailstore.KindSubject, Value: f.Value})
		case config.FilterFrom:
			crits = append(crits, mailstore.Criteria{Kind: mailstore.KindFrom, Value: f.Value})
		case config.FilterTo:
			crits = append(crits, mailstore.Criteria{Kind: mailstore.KindTo, Value: f.Value})
		case config.FilterBody:
			crits = append(crits, mailstore.Criteria{Kind: mailstore.KindBody, Value: f.Value})
		case config.FilterFolder:
			// Folder selection, not a message predicate.
		}
	}
	if len(crits) == 0 {
		crits = append(crits, mailstore.Criteria{
			Kind:   mailstore.KindAll,
			Since:  w.Start,
			Before: w.End,
		})
	}
	return crits
}
