package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatSummary renders a pass summary for the console.
func FormatSummary(s *Summary) string {
	var b strings.Builder
	res := s.Result
	n := func(v int) string { return humanize.Comma(int64(v)) }

	switch s.Pass {
	case PassClassify:
		fmt.Fprintf(&b, "✓ Classified %s of %s triples\n", n(res.Updated), n(res.Total))
		fmt.Fprintf(&b, "  Unchanged: %s\n", n(res.Skipped))
	case PassAssignMisc:
		fmt.Fprintf(&b, "✓ Assigned %s triples to the Misc cluster (id %d)\n", n(res.Updated), s.FallbackID)
		fmt.Fprintf(&b, "  Already had cluster assignments: %s\n", n(res.Skipped))
	case PassIngestText:
		fmt.Fprintf(&b, "✓ Processed %s documents\n", n(res.Total))
		fmt.Fprintf(&b, "  Success: %s\n", n(res.Updated))
	default:
		fmt.Fprintf(&b, "✓ %s: updated %s of %s rows\n", s.Pass, n(res.Updated), n(res.Total))
		fmt.Fprintf(&b, "  Skipped: %s\n", n(res.Skipped))
	}
	fmt.Fprintf(&b, "  Errors: %s\n", n(res.Errored))
	fmt.Fprintf(&b, "  Commits: %s, took %s\n", n(res.Commits), s.Duration.Round(time.Millisecond))
	return b.String()
}
