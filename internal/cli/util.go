package cli

import (
	"fmt"
	"time"

	"mailcrawl/internal/crawler"
)

// parseTimeFlag accepts an RFC 3339 timestamp or a plain date.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339 or YYYY-MM-DD)", value)
}

func parseWindow(since, before string) (crawler.Window, error) {
	var w crawler.Window
	var err error
	if w.Start, err = parseTimeFlag(since); err != nil {
		return w, err
	}
	if w.End, err = parseTimeFlag(before); err != nil {
		return w, err
	}
	if !w.Start.IsZero() && !w.End.IsZero() && !w.Start.Before(w.End) {
		return w, fmt.Errorf("--since must be earlier than --before")
	}
	return w, nil
}
