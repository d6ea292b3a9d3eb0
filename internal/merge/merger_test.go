package merge

import (
	"strings"
	"testing"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
)

func result(engine string, page int, conf float64, words ...string) document.OcrResult {
	tokens := make([]document.Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, document.Token{Text: w, Confidence: conf})
	}
	return document.OcrResult{
		Engine:    engine,
		PageIndex: page,
		RawText:   strings.Join(words, " "),
		Tokens:    tokens,
	}
}

func TestMergeAgreement(t *testing.T) {
	m := NewMerger("tesseract")

	a := result("tesseract", 0, 0.9, "quantum", "computing", "is", "here")
	b := result("cuneiform", 0, document.ConfidenceUnknown, "quantum", "computing", "is", "here")

	ct, err := m.Merge("doc-1", a, b)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if ct.Text != "quantum computing is here" {
		t.Errorf("unexpected canonical text: %q", ct.Text)
	}
	if ct.MergeConfidence != 1.0 {
		t.Errorf("expected merge confidence 1.0 on full agreement, got %f", ct.MergeConfidence)
	}
	for _, span := range ct.Spans {
		if span.Source != document.SpanAgreed {
			t.Errorf("expected all spans agreed, got %v", span.Source)
		}
	}
}

func TestMergeOrderIndependenceOnAgreement(t *testing.T) {
	m := NewMerger("tesseract")

	a := result("tesseract", 0, 0.9, "Neural", "networks", "everywhere")
	b := result("cuneiform", 0, 0.7, "neural", "Networks", "everywhere")

	ab, err := m.Merge("doc-1", a, b)
	if err != nil {
		t.Fatalf("Merge(a,b) returned error: %v", err)
	}
	ba, err := m.Merge("doc-1", b, a)
	if err != nil {
		t.Fatalf("Merge(b,a) returned error: %v", err)
	}

	if ab.Text != ba.Text {
		t.Errorf("merge not order-independent: %q vs %q", ab.Text, ba.Text)
	}
	if ab.MergeConfidence != ba.MergeConfidence {
		t.Errorf("merge confidence not order-independent: %f vs %f", ab.MergeConfidence, ba.MergeConfidence)
	}
}

func TestMergeDisagreementPrefersHigherConfidence(t *testing.T) {
	m := NewMerger("tesseract")

	a := result("tesseract", 0, 0.6, "the", "AI", "term")
	b := result("cuneiform", 0, 0.9, "the", "A1", "term")

	ct, err := m.Merge("doc-1", a, b)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if !strings.Contains(ct.Text, "A1") {
		t.Errorf("expected higher-confidence token A1, got %q", ct.Text)
	}
	// 2 agreed of 3 aligned pairs.
	if want := 2.0 / 3.0; ct.MergeConfidence != want {
		t.Errorf("expected merge confidence %f, got %f", want, ct.MergeConfidence)
	}
}

func TestMergeDisagreementPrimaryTieBreak(t *testing.T) {
	m := NewMerger("tesseract")

	// The CLI engine reports no confidence, so the primary engine must win
	// the disagreement deterministically.
	a := result("tesseract", 0, 0.6, "the", "AI", "term")
	b := result("cuneiform", 0, document.ConfidenceUnknown, "the", "A1", "term")

	for i := 0; i < 5; i++ {
		ct, err := m.Merge("doc-1", a, b)
		if err != nil {
			t.Fatalf("Merge returned error: %v", err)
		}
		if !strings.Contains(ct.Text, "AI") || strings.Contains(ct.Text, "A1") {
			t.Fatalf("run %d: expected primary engine token AI, got %q", i, ct.Text)
		}
	}
}

func TestMergeKeepsExclusiveSpans(t *testing.T) {
	m := NewMerger("tesseract")

	a := result("tesseract", 0, 0.8, "emerging", "technology", "scan")
	b := result("cuneiform", 0, 0.8, "emerging", "scan")

	ct, err := m.Merge("doc-1", a, b)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if !strings.Contains(ct.Text, "technology") {
		t.Fatalf("engine-exclusive token dropped: %q", ct.Text)
	}

	span := ct.SpanAt(strings.Index(ct.Text, "technology"))
	if span == nil {
		t.Fatal("no span covers exclusive token")
	}
	if span.Source != document.SpanExclusive {
		t.Errorf("expected exclusive span, got %v", span.Source)
	}
	if span.Confidence >= confidenceResolved {
		t.Errorf("exclusive span should carry low confidence, got %f", span.Confidence)
	}
}

func TestMergeSingleEmptyInput(t *testing.T) {
	m := NewMerger("tesseract")

	a := result("tesseract", 2, 0.8, "blockchain", "ledger")
	b := document.OcrResult{Engine: "cuneiform", PageIndex: 2}

	ct, err := m.Merge("doc-1", a, b)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if ct.Text != "blockchain ledger" {
		t.Errorf("unexpected canonical text: %q", ct.Text)
	}
	if ct.PageIndex != 2 {
		t.Errorf("expected page index 2, got %d", ct.PageIndex)
	}
	if ct.MergeConfidence != 0 {
		t.Errorf("no aligned tokens, merge confidence should be 0, got %f", ct.MergeConfidence)
	}
}

func TestMergeBothEmpty(t *testing.T) {
	m := NewMerger("tesseract")

	a := document.OcrResult{Engine: "tesseract", PageIndex: 1}
	b := document.OcrResult{Engine: "cuneiform", PageIndex: 1}

	_, err := m.Merge("doc-1", a, b)
	if err == nil {
		t.Fatal("expected error for two empty results")
	}
	if !scanerrors.IsCode(err, scanerrors.ErrorEmptyMergeInput) {
		t.Errorf("expected EMPTY_MERGE_INPUT, got %v", err)
	}
}

func TestMergeProducedOncePerPageSpansCoverText(t *testing.T) {
	m := NewMerger("tesseract")

	a := result("tesseract", 0, 0.9, "a", "b", "c", "d")
	b := result("cuneiform", 0, 0.5, "a", "x", "c")

	ct, err := m.Merge("doc-1", a, b)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	for off := 0; off < len(ct.Text); off++ {
		if ct.Text[off] == ' ' {
			continue
		}
		if ct.SpanAt(off) == nil {
			t.Fatalf("offset %d (%q) not covered by any span", off, ct.Text[off])
		}
	}
}

func TestLCSPairs(t *testing.T) {
	toks := func(words ...string) []document.Token {
		out := make([]document.Token, len(words))
		for i, w := range words {
			out[i] = document.Token{Text: w}
		}
		return out
	}

	tests := []struct {
		name  string
		a, b  []document.Token
		count int
	}{
		{"identical", toks("x", "y", "z"), toks("x", "y", "z"), 3},
		{"case insensitive", toks("Quantum", "AI"), toks("quantum", "ai"), 2},
		{"insertion", toks("a", "b", "c"), toks("a", "noise", "b", "c"), 3},
		{"disjoint", toks("a", "b"), toks("c", "d"), 0},
		{"one empty", toks("a"), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := lcsPairs(tt.a, tt.b)
			if len(pairs) != tt.count {
				t.Errorf("expected %d pairs, got %d", tt.count, len(pairs))
			}
		})
	}
}
