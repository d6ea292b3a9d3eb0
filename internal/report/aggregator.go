/**
 * Result aggregator: the single shared-mutable point of the pipeline.
 *
 * Page workers record hits and page failures concurrently; a mutex keeps the
 * in-progress report consistent. Finalize returns an immutable snapshot and
 * the aggregator refuses further writes for that document.
 */

package report

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emtechscan/scan-worker/internal/document"
)

// Aggregator collects hits for one document scan. Append-only until
// finalized.
type Aggregator struct {
	mu         sync.Mutex
	documentID string
	sourcePath string
	startedAt  time.Time
	pageCount  int

	hits        []document.Hit
	suppressed  int
	failedPages []document.PageFailure
	finalized   bool
}

// NewAggregator starts an empty report for the given document.
func NewAggregator(documentID, sourcePath string, pageCount int) *Aggregator {
	return &Aggregator{
		documentID: documentID,
		sourcePath: sourcePath,
		startedAt:  time.Now(),
		pageCount:  pageCount,
	}
}

// SetPageCount fixes the page count once rasterization has revealed it.
func (a *Aggregator) SetPageCount(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pageCount = n
}

// Record appends a hit to the in-progress report.
func (a *Aggregator) Record(hit document.Hit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return fmt.Errorf("report for document %s already finalized", a.documentID)
	}
	a.hits = append(a.hits, hit)
	return nil
}

// RecordSuppressed counts hits filtered out by the confidence threshold.
func (a *Aggregator) RecordSuppressed(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.suppressed += n
}

// RecordPageFailure marks a page that could not be processed. The final
// report keeps these separate from pages that were simply clean of hits.
func (a *Aggregator) RecordPageFailure(pageIndex int, code, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	for _, f := range a.failedPages {
		if f.PageIndex == pageIndex {
			return
		}
	}
	a.failedPages = append(a.failedPages, document.PageFailure{
		PageIndex: pageIndex,
		Code:      code,
		Reason:    reason,
	})
}

// Finalize seals the report and returns an immutable snapshot. A document
// with zero usable pages yields a failed report rather than an error.
func (a *Aggregator) Finalize() *document.ScanReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true

	hits := make([]document.Hit, len(a.hits))
	copy(hits, a.hits)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].PageIndex != hits[j].PageIndex {
			return hits[i].PageIndex < hits[j].PageIndex
		}
		if hits[i].Confidence != hits[j].Confidence {
			return hits[i].Confidence > hits[j].Confidence
		}
		return hits[i].Start < hits[j].Start
	})

	failed := make([]document.PageFailure, len(a.failedPages))
	copy(failed, a.failedPages)
	sort.Slice(failed, func(i, j int) bool { return failed[i].PageIndex < failed[j].PageIndex })

	counts := make(map[string]int)
	for _, h := range hits {
		counts[h.Category]++
	}

	rep := &document.ScanReport{
		DocumentID:     a.documentID,
		SourcePath:     a.sourcePath,
		StartedAt:      a.startedAt,
		FinishedAt:     time.Now(),
		PageCount:      a.pageCount,
		Hits:           hits,
		CategoryCounts: counts,
		SuppressedHits: a.suppressed,
		FailedPages:    failed,
	}

	if a.pageCount == 0 || len(failed) >= a.pageCount {
		rep.Failed = true
		rep.FailureReason = "no pages could be processed"
	}

	return rep
}

// FailDocument seals the report as a document-level failure with zero hits.
func (a *Aggregator) FailDocument(reason string) *document.ScanReport {
	rep := a.Finalize()
	rep.Failed = true
	rep.FailureReason = reason
	rep.Hits = nil
	rep.CategoryCounts = map[string]int{}
	return rep
}
