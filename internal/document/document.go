/**
 * Shared data structures for the scan pipeline.
 *
 * A Document moves through the pipeline as an ordered set of Pages. Each page
 * owns its bitmap until the OCR adapters consume it, gets exactly one
 * CanonicalText from the consensus merge, and contributes zero or more Hits
 * to the final ScanReport.
 */

package document

import (
	"fmt"
	"time"
)

// PageStatus tracks where a page is in the pipeline. Transitions are
// monotonic: a page never moves backwards, and Failed is terminal.
type PageStatus int

const (
	PagePending PageStatus = iota
	PageRasterized
	PageRecognized
	PageMerged
	PageMatched
	PageFailed
)

var pageStatusNames = map[PageStatus]string{
	PagePending:    "pending",
	PageRasterized: "rasterized",
	PageRecognized: "recognized",
	PageMerged:     "merged",
	PageMatched:    "matched",
	PageFailed:     "failed",
}

func (s PageStatus) String() string {
	if name, ok := pageStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// DocumentStatus tracks the document-level state machine.
type DocumentStatus string

const (
	DocIngested    DocumentStatus = "ingested"
	DocRasterizing DocumentStatus = "rasterizing"
	DocRecognizing DocumentStatus = "recognizing"
	DocMerging     DocumentStatus = "merging"
	DocMatching    DocumentStatus = "matching"
	DocAggregated  DocumentStatus = "aggregated"
	DocReported    DocumentStatus = "reported"
	DocFailed      DocumentStatus = "failed"
)

// Document is an immutable ingested input plus its per-page working state.
type Document struct {
	ID         string
	SourcePath string
	Data       []byte
	Status     DocumentStatus
	Pages      []*Page
}

// Page holds the working state for one page of a document.
type Page struct {
	Index  int    // 0-based
	Bitmap []byte // PNG-encoded page image, owned by the rasterizer until consumed
	Status PageStatus

	Canonical *CanonicalText // set exactly once by the consensus merger

	FailureCode   string
	FailureReason string
}

// Advance moves the page to next. Backward transitions and transitions out
// of PageFailed are rejected.
func (p *Page) Advance(next PageStatus) error {
	if p.Status == PageFailed {
		return fmt.Errorf("page %d is failed, cannot transition to %s", p.Index, next)
	}
	if next != PageFailed && next <= p.Status {
		return fmt.Errorf("page %d cannot regress from %s to %s", p.Index, p.Status, next)
	}
	p.Status = next
	return nil
}

// Fail marks the page failed with a reason. Idempotent.
func (p *Page) Fail(code, reason string) {
	if p.Status == PageFailed {
		return
	}
	p.Status = PageFailed
	p.FailureCode = code
	p.FailureReason = reason
}

// Token is a word-level unit recognized by an engine.
type Token struct {
	Text   string
	Bounds Region
	// Confidence in [0,1]; ConfidenceUnknown when the engine reports none.
	Confidence float64
}

// ConfidenceUnknown marks a token whose engine reported no confidence.
const ConfidenceUnknown = -1.0

// Region is a rectangular area in pixel coordinates, origin top-left.
type Region struct {
	X, Y, Width, Height int
}

// OcrResult is the immutable output of one engine for one page.
type OcrResult struct {
	Engine    string
	PageIndex int
	RawText   string
	Tokens    []Token
}

// Empty reports whether the engine produced no usable text.
func (r OcrResult) Empty() bool {
	return len(r.Tokens) == 0 && r.RawText == ""
}

// SpanSource records which engine(s) contributed a canonical span.
type SpanSource string

const (
	SpanAgreed    SpanSource = "agreed"    // both engines produced the same token
	SpanResolved  SpanSource = "resolved"  // engines disagreed, one token chosen
	SpanExclusive SpanSource = "exclusive" // only one engine saw this span
)

// Span maps a byte range of the canonical text to its provenance.
type Span struct {
	Start      int
	End        int
	Source     SpanSource
	Engine     string // engine that contributed the text for resolved/exclusive spans
	Confidence float64
}

// CanonicalText is the merged page text, produced exactly once per page.
type CanonicalText struct {
	PageIndex       int
	Text            string
	Spans           []Span
	MergeConfidence float64 // fraction of aligned tokens on which the engines agreed
}

// SpanAt returns the span covering byte offset off, or nil.
func (ct *CanonicalText) SpanAt(off int) *Span {
	for i := range ct.Spans {
		if off >= ct.Spans[i].Start && off < ct.Spans[i].End {
			return &ct.Spans[i]
		}
	}
	return nil
}

// SpanConfidence returns the minimum span confidence over [start, end), or
// the page merge confidence when no span covers the range.
func (ct *CanonicalText) SpanConfidence(start, end int) float64 {
	conf := -1.0
	for i := range ct.Spans {
		s := &ct.Spans[i]
		if s.End <= start || s.Start >= end {
			continue
		}
		if conf < 0 || s.Confidence < conf {
			conf = s.Confidence
		}
	}
	if conf < 0 {
		return ct.MergeConfidence
	}
	return conf
}

// MatchMode selects how a term is matched against canonical text.
type MatchMode string

const (
	MatchExact           MatchMode = "exact"
	MatchCaseInsensitive MatchMode = "case-insensitive"
	MatchFuzzy           MatchMode = "fuzzy"
	MatchRegex           MatchMode = "regex"
)

// TermDefinition is one configured technology term. Loaded once at startup,
// read-only during a scan.
type TermDefinition struct {
	Term          string    `yaml:"term"`
	Mode          MatchMode `yaml:"mode"`
	MaxDistance   int       `yaml:"max_distance,omitempty"` // fuzzy only, edit distance per token
	Category      string    `yaml:"category"`
	MinConfidence float64   `yaml:"min_confidence,omitempty"` // overrides the global threshold
}

// Hit is one scored term occurrence. Immutable once produced.
type Hit struct {
	DocumentID string
	PageIndex  int
	Term       string
	Category   string
	Start      int // byte offsets into the canonical text
	End        int
	Matched    string // the actual matched text
	Confidence float64
	Context    string // surrounding window of canonical text
}

// PageFailure records a page that could not be processed, so the report
// never presents an OCR failure as a clean negative.
type PageFailure struct {
	PageIndex int
	Code      string
	Reason    string
}

// ScanReport is the aggregated, immutable result of scanning one document.
type ScanReport struct {
	DocumentID     string
	SourcePath     string
	StartedAt      time.Time
	FinishedAt     time.Time
	PageCount      int
	Hits           []Hit
	CategoryCounts map[string]int
	SuppressedHits int // hits filtered by the confidence threshold, kept as a count only
	FailedPages    []PageFailure
	Failed         bool // document-level failure: zero usable pages
	FailureReason  string
}

// CleanPages returns the number of pages that completed the pipeline.
func (r *ScanReport) CleanPages() int {
	return r.PageCount - len(r.FailedPages)
}
