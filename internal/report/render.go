package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/emtechscan/scan-worker/internal/document"
)

// WriteText renders a human-readable report. Failed pages are always listed
// so a reviewer never mistakes an OCR failure for a clean negative.
func WriteText(w io.Writer, rep *document.ScanReport) error {
	fmt.Fprintf(w, "Scan report for %s (%s)\n", rep.SourcePath, rep.DocumentID)
	fmt.Fprintf(w, "Pages: %d processed, %d failed\n", rep.CleanPages(), len(rep.FailedPages))

	if rep.Failed {
		fmt.Fprintf(w, "STATUS: FAILED: %s\n", rep.FailureReason)
		return nil
	}

	if len(rep.Hits) == 0 {
		fmt.Fprintln(w, "No term hits.")
	} else {
		categories := make([]string, 0, len(rep.CategoryCounts))
		for c := range rep.CategoryCounts {
			categories = append(categories, c)
		}
		sort.Strings(categories)

		fmt.Fprintf(w, "Hits: %d", len(rep.Hits))
		if rep.SuppressedHits > 0 {
			fmt.Fprintf(w, " (+%d below confidence threshold)", rep.SuppressedHits)
		}
		fmt.Fprintln(w)

		for _, cat := range categories {
			fmt.Fprintf(w, "\n[%s] %d hit(s)\n", cat, rep.CategoryCounts[cat])
			for _, h := range rep.Hits {
				if h.Category != cat {
					continue
				}
				fmt.Fprintf(w, "  page %d  %-30q  conf %.2f  ...%s...\n",
					h.PageIndex+1, h.Term, h.Confidence, h.Context)
			}
		}
	}

	if len(rep.FailedPages) > 0 {
		fmt.Fprintln(w, "\nPages that could not be processed:")
		for _, f := range rep.FailedPages {
			fmt.Fprintf(w, "  page %d  %s: %s\n", f.PageIndex+1, f.Code, f.Reason)
		}
	}

	return nil
}
