package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Houeta/price-flow/internal/models"
)

// printSummary writes a human readable run report.
func printSummary(w io.Writer, s *models.RunSummary) {
	fmt.Fprintf(w, "run %s: mode=%s state=%s duration=%s\n", s.RunID, s.Mode, s.State, s.Duration().Round(time.Millisecond))
	if s.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", s.Reason)
	}

	fmt.Fprintf(w, "  requested=%d fetched=%d failed_fetch=%d\n", s.Requested, s.Fetched, s.FailedFetch)
	fmt.Fprintf(w, "  inserted=%d updated=%d history_appended=%d skipped_existing=%d\n",
		s.Inserted, s.Updated, s.HistoryAppended, s.SkippedExisting)

	if s.Deleted > 0 || s.NotFound > 0 {
		fmt.Fprintf(w, "  deleted=%d not_found=%d\n", s.Deleted, s.NotFound)
	}
	if s.Repaired > 0 {
		fmt.Fprintf(w, "  repaired=%d\n", s.Repaired)
	}

	for _, f := range s.Failures {
		fmt.Fprintf(w, "  failed batch=%d stage=%s ids=%s: %s\n",
			f.Batch, f.Stage, strings.Join(f.ProductIDs, ","), f.Reason)
	}

	for _, d := range s.Drops {
		fmt.Fprintf(w, "  price drop %s: %s -> %s\n",
			d.ProductID, d.Previous.StringFixed(2), d.Current.StringFixed(2))
	}
}
