/**
 * Consensus merger: reconciles the two engines' outputs for a page into one
 * canonical text.
 *
 * Alignment is a token-level longest-common-subsequence over the two token
 * streams, case-insensitive. Aligned equal tokens keep high confidence;
 * aligned disagreements are resolved by per-token confidence (primary engine
 * breaks ties and covers engines that report no confidence); tokens only one
 * engine saw are kept at low confidence, because a missed term is worse than
 * a noisy one. The page merge confidence is the fraction of aligned token
 * pairs on which the engines agreed.
 */

package merge

import (
	"strings"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
)

// Span confidence levels assigned during the merge.
const (
	confidenceAgreed    = 0.95
	confidenceResolved  = 0.60
	confidenceExclusive = 0.30
)

// Merger produces one CanonicalText per page from two OcrResults.
type Merger struct {
	primary string // engine preferred when confidences cannot decide
}

// NewMerger creates a merger with the given primary engine name.
func NewMerger(primary string) *Merger {
	return &Merger{primary: primary}
}

// mergedToken is one token of canonical text before offsets are assigned.
type mergedToken struct {
	text       string
	source     document.SpanSource
	engine     string
	confidence float64
}

// Merge builds the canonical text for a page. Fails with EMPTY_MERGE_INPUT
// only when both results are empty; a single empty engine output degrades to
// an all-exclusive merge of the other engine's text.
func (m *Merger) Merge(docID string, a, b document.OcrResult) (*document.CanonicalText, error) {
	if a.Empty() && b.Empty() {
		return nil, scanerrors.NewEmptyMergeInputError(docID, a.PageIndex)
	}

	var tokens []mergedToken
	agreed, aligned := 0, 0

	switch {
	case a.Empty():
		tokens = exclusiveTokens(b)
	case b.Empty():
		tokens = exclusiveTokens(a)
	default:
		tokens, agreed, aligned = m.align(a, b)
	}

	ct := &document.CanonicalText{PageIndex: a.PageIndex}
	if a.Empty() {
		ct.PageIndex = b.PageIndex
	}
	if aligned > 0 {
		ct.MergeConfidence = float64(agreed) / float64(aligned)
	}

	assemble(ct, tokens)
	return ct, nil
}

// align walks the LCS alignment of the two token streams and emits canonical
// tokens in order.
func (m *Merger) align(a, b document.OcrResult) ([]mergedToken, int, int) {
	pairs := lcsPairs(a.Tokens, b.Tokens)

	var out []mergedToken
	agreed, aligned := 0, 0
	ai, bi := 0, 0

	emitGap := func(aEnd, bEnd int) {
		// Pair up leading gap tokens positionally as disagreements; the
		// leftover tail on either side is engine-exclusive.
		for ai < aEnd && bi < bEnd {
			out = append(out, m.resolve(a, b, a.Tokens[ai], b.Tokens[bi]))
			aligned++
			ai++
			bi++
		}
		for ; ai < aEnd; ai++ {
			out = append(out, mergedToken{
				text:       a.Tokens[ai].Text,
				source:     document.SpanExclusive,
				engine:     a.Engine,
				confidence: confidenceExclusive,
			})
		}
		for ; bi < bEnd; bi++ {
			out = append(out, mergedToken{
				text:       b.Tokens[bi].Text,
				source:     document.SpanExclusive,
				engine:     b.Engine,
				confidence: confidenceExclusive,
			})
		}
	}

	for _, p := range pairs {
		emitGap(p.a, p.b)
		// Agreeing pair; keep the primary engine's casing so output does not
		// depend on argument order.
		text := a.Tokens[p.a].Text
		if b.Engine == m.primary {
			text = b.Tokens[p.b].Text
		}
		out = append(out, mergedToken{
			text:       text,
			source:     document.SpanAgreed,
			confidence: confidenceAgreed,
		})
		agreed++
		aligned++
		ai, bi = p.a+1, p.b+1
	}
	emitGap(len(a.Tokens), len(b.Tokens))

	return out, agreed, aligned
}

// resolve picks one token from an aligned disagreement.
func (m *Merger) resolve(a, b document.OcrResult, ta, tb document.Token) mergedToken {
	// Both engines report confidence: the higher one wins, primary breaks
	// exact ties. Otherwise the configured primary engine wins.
	if ta.Confidence >= 0 && tb.Confidence >= 0 && ta.Confidence != tb.Confidence {
		if ta.Confidence > tb.Confidence {
			return mergedToken{text: ta.Text, source: document.SpanResolved, engine: a.Engine, confidence: confidenceResolved}
		}
		return mergedToken{text: tb.Text, source: document.SpanResolved, engine: b.Engine, confidence: confidenceResolved}
	}
	if b.Engine == m.primary {
		return mergedToken{text: tb.Text, source: document.SpanResolved, engine: b.Engine, confidence: confidenceResolved}
	}
	return mergedToken{text: ta.Text, source: document.SpanResolved, engine: a.Engine, confidence: confidenceResolved}
}

func exclusiveTokens(r document.OcrResult) []mergedToken {
	out := make([]mergedToken, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		out = append(out, mergedToken{
			text:       t.Text,
			source:     document.SpanExclusive,
			engine:     r.Engine,
			confidence: confidenceExclusive,
		})
	}
	return out
}

// assemble joins tokens with single spaces and records provenance spans,
// coalescing adjacent tokens with identical provenance.
func assemble(ct *document.CanonicalText, tokens []mergedToken) {
	var sb strings.Builder
	for i, tok := range tokens {
		if i > 0 {
			sb.WriteByte(' ')
		}
		start := sb.Len()
		sb.WriteString(tok.text)
		end := sb.Len()

		if n := len(ct.Spans); n > 0 {
			last := &ct.Spans[n-1]
			if last.Source == tok.source && last.Engine == tok.engine && last.Confidence == tok.confidence && last.End == start-1 {
				last.End = end
				continue
			}
		}
		ct.Spans = append(ct.Spans, document.Span{
			Start:      start,
			End:        end,
			Source:     tok.source,
			Engine:     tok.engine,
			Confidence: tok.confidence,
		})
	}
	ct.Text = sb.String()
}

type pair struct{ a, b int }

// lcsPairs computes the longest common subsequence of the two token streams
// under case-insensitive equality and returns the matched index pairs.
func lcsPairs(a, b []document.Token) []pair {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}

	eq := func(i, j int) bool {
		return strings.EqualFold(a[i].Text, b[j].Text)
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if eq(i, j) {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var pairs []pair
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case eq(i, j):
			pairs = append(pairs, pair{a: i, b: j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
