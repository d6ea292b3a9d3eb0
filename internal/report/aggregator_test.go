package report

import (
	"sync"
	"testing"

	"github.com/emtechscan/scan-worker/internal/document"
)

func TestAggregatorFinalize(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 3)

	hits := []document.Hit{
		{PageIndex: 1, Term: "quantum computing", Category: "quantum", Start: 10, Confidence: 0.8},
		{PageIndex: 0, Term: "CRISPR", Category: "biotech", Start: 4, Confidence: 0.9},
		{PageIndex: 1, Term: "CRISPR", Category: "biotech", Start: 2, Confidence: 0.95},
	}
	for _, h := range hits {
		if err := agg.Record(h); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	agg.RecordSuppressed(2)
	agg.RecordPageFailure(2, "ENGINE_UNAVAILABLE", "both engines failed")

	rep := agg.Finalize()

	if rep.DocumentID != "doc-1" || rep.SourcePath != "paper.pdf" {
		t.Errorf("report identity wrong: %s %s", rep.DocumentID, rep.SourcePath)
	}
	if rep.PageCount != 3 || rep.CleanPages() != 2 {
		t.Errorf("expected 3 pages / 2 clean, got %d / %d", rep.PageCount, rep.CleanPages())
	}
	if len(rep.Hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(rep.Hits))
	}
	// Sorted by page, then confidence descending.
	if rep.Hits[0].PageIndex != 0 {
		t.Errorf("hits not sorted by page: first hit on page %d", rep.Hits[0].PageIndex)
	}
	if rep.Hits[1].Term != "CRISPR" || rep.Hits[2].Term != "quantum computing" {
		t.Errorf("page 1 hits not ranked by confidence: %q then %q", rep.Hits[1].Term, rep.Hits[2].Term)
	}
	if rep.CategoryCounts["biotech"] != 2 || rep.CategoryCounts["quantum"] != 1 {
		t.Errorf("wrong category counts: %v", rep.CategoryCounts)
	}
	if rep.SuppressedHits != 2 {
		t.Errorf("expected 2 suppressed hits, got %d", rep.SuppressedHits)
	}
	if len(rep.FailedPages) != 1 || rep.FailedPages[0].PageIndex != 2 {
		t.Errorf("failed page not reported: %v", rep.FailedPages)
	}
	if rep.Failed {
		t.Error("a document with usable pages must not be marked failed")
	}
}

func TestAggregatorRefusesWritesAfterFinalize(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 1)
	agg.Finalize()

	if err := agg.Record(document.Hit{Term: "late"}); err == nil {
		t.Error("Record after Finalize must fail")
	}

	agg.RecordPageFailure(0, "CORRUPT_DOCUMENT", "late failure")
	rep := agg.Finalize()
	if len(rep.FailedPages) != 0 {
		t.Error("page failure recorded after finalize")
	}
}

func TestAggregatorDuplicatePageFailure(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 2)
	agg.RecordPageFailure(0, "ENGINE_UNAVAILABLE", "first")
	agg.RecordPageFailure(0, "EMPTY_MERGE_INPUT", "second")

	rep := agg.Finalize()
	if len(rep.FailedPages) != 1 {
		t.Fatalf("expected one failure per page, got %d", len(rep.FailedPages))
	}
	if rep.FailedPages[0].Code != "ENGINE_UNAVAILABLE" {
		t.Errorf("first failure must win, got %s", rep.FailedPages[0].Code)
	}
}

func TestAggregatorAllPagesFailed(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 2)
	agg.RecordPageFailure(0, "ENGINE_UNAVAILABLE", "down")
	agg.RecordPageFailure(1, "ENGINE_UNAVAILABLE", "down")

	rep := agg.Finalize()
	if !rep.Failed {
		t.Error("a document with zero usable pages must be marked failed")
	}
	if rep.FailureReason == "" {
		t.Error("failure reason missing")
	}
}

func TestAggregatorZeroPages(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 0)
	rep := agg.Finalize()
	if !rep.Failed {
		t.Error("zero-page document must be marked failed")
	}
}

func TestAggregatorFailDocument(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 2)
	agg.Record(document.Hit{Term: "stale", Category: "x"})

	rep := agg.FailDocument("unsupported format")
	if !rep.Failed || rep.FailureReason != "unsupported format" {
		t.Errorf("document failure not sealed: %+v", rep)
	}
	if len(rep.Hits) != 0 || len(rep.CategoryCounts) != 0 {
		t.Error("failed document report must carry zero hits")
	}
}

func TestAggregatorConcurrentRecord(t *testing.T) {
	agg := NewAggregator("doc-1", "paper.pdf", 8)

	var wg sync.WaitGroup
	for page := 0; page < 8; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				agg.Record(document.Hit{PageIndex: page, Term: "drone", Category: "robotics", Start: i})
			}
			agg.RecordSuppressed(1)
		}(page)
	}
	wg.Wait()

	rep := agg.Finalize()
	if len(rep.Hits) != 400 {
		t.Errorf("expected 400 hits, got %d", len(rep.Hits))
	}
	if rep.SuppressedHits != 8 {
		t.Errorf("expected 8 suppressed, got %d", rep.SuppressedHits)
	}
	if rep.CategoryCounts["robotics"] != 400 {
		t.Errorf("wrong category count: %v", rep.CategoryCounts)
	}
}
