package document

import "testing"

func TestPageAdvance(t *testing.T) {
	p := &Page{Index: 0}

	for _, next := range []PageStatus{PageRasterized, PageRecognized, PageMerged, PageMatched} {
		if err := p.Advance(next); err != nil {
			t.Fatalf("Advance(%s): %v", next, err)
		}
	}
	if p.Status != PageMatched {
		t.Errorf("status = %s", p.Status)
	}
}

func TestPageAdvanceRejectsRegression(t *testing.T) {
	p := &Page{Index: 3, Status: PageMerged}

	if err := p.Advance(PageRasterized); err == nil {
		t.Error("backward transition accepted")
	}
	if err := p.Advance(PageMerged); err == nil {
		t.Error("self transition accepted")
	}
	if p.Status != PageMerged {
		t.Errorf("status changed on rejected transition: %s", p.Status)
	}
}

func TestPageFailIsTerminalAndIdempotent(t *testing.T) {
	p := &Page{Index: 1, Status: PageRecognized}

	p.Fail("ENGINE_UNAVAILABLE", "both engines down")
	p.Fail("EMPTY_MERGE_INPUT", "late failure")

	if p.FailureCode != "ENGINE_UNAVAILABLE" {
		t.Errorf("first failure must win, got %s", p.FailureCode)
	}
	if err := p.Advance(PageMerged); err == nil {
		t.Error("transition out of failed accepted")
	}
}

func TestOcrResultEmpty(t *testing.T) {
	if !(OcrResult{}).Empty() {
		t.Error("zero result must be empty")
	}
	if (OcrResult{RawText: "x"}).Empty() {
		t.Error("result with raw text is not empty")
	}
	if (OcrResult{Tokens: []Token{{Text: "x"}}}).Empty() {
		t.Error("result with tokens is not empty")
	}
}

func TestSpanConfidence(t *testing.T) {
	ct := &CanonicalText{
		Text: "alpha beta gamma",
		Spans: []Span{
			{Start: 0, End: 5, Confidence: 0.95},
			{Start: 6, End: 10, Confidence: 0.60},
			{Start: 11, End: 16, Confidence: 0.30},
		},
		MergeConfidence: 0.5,
	}

	tests := []struct {
		name       string
		start, end int
		want       float64
	}{
		{"single span", 0, 5, 0.95},
		{"crosses two spans", 0, 10, 0.60},
		{"crosses all spans", 0, 16, 0.30},
		{"uncovered range", 100, 110, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ct.SpanConfidence(tt.start, tt.end); got != tt.want {
				t.Errorf("SpanConfidence(%d, %d) = %f, want %f", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestSpanAt(t *testing.T) {
	ct := &CanonicalText{
		Spans: []Span{{Start: 0, End: 5, Source: SpanAgreed}, {Start: 6, End: 10, Source: SpanResolved}},
	}
	if s := ct.SpanAt(7); s == nil || s.Source != SpanResolved {
		t.Errorf("SpanAt(7) = %+v", s)
	}
	if s := ct.SpanAt(5); s != nil {
		t.Errorf("gap offset should have no span, got %+v", s)
	}
}
