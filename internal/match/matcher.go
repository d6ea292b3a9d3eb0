/**
 * Term matcher: scans canonical page text for configured technology terms.
 *
 * Purely functional over its inputs. Match confidence is the covered span's
 * merge confidence times a mode certainty factor; hits below the configured
 * minimum are suppressed and surface only as a count.
 */

package match

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/emtechscan/scan-worker/internal/document"
)

const contextWindow = 40 // bytes of canonical text kept on each side of a hit

// Matcher holds the compiled term set. Safe for concurrent use.
type Matcher struct {
	terms         []compiledTerm
	minConfidence float64
}

type compiledTerm struct {
	def        document.TermDefinition
	normTokens []string       // normalized term tokens, exact/ci/fuzzy modes
	re         *regexp.Regexp // regex mode only
}

// NewMatcher compiles a validated term file into a matcher. The global
// minimum confidence falls back to minConfidence when the file sets none.
func NewMatcher(tf *TermFile, minConfidence float64) (*Matcher, error) {
	min := tf.MinConfidence
	if min == 0 {
		min = minConfidence
	}

	m := &Matcher{minConfidence: min}
	for _, def := range tf.Terms {
		ct := compiledTerm{def: def}
		if def.Mode == document.MatchRegex {
			re, err := regexp.Compile("(?i)" + def.Term)
			if err != nil {
				return nil, err
			}
			ct.re = re
		} else {
			ct.normTokens = normalizeTokens(def.Term)
		}
		m.terms = append(m.terms, ct)
	}
	return m, nil
}

// Match scans one page's canonical text and returns scored hits plus the
// number of hits suppressed by the confidence threshold.
func (m *Matcher) Match(docID string, ct *document.CanonicalText) ([]document.Hit, int) {
	if ct == nil || ct.Text == "" {
		return nil, 0
	}

	toks := tokenizeCanonical(ct.Text)
	if len(toks) == 0 {
		return nil, 0
	}

	var hits []document.Hit
	suppressed := 0

	for _, term := range m.terms {
		var candidates []candidate
		if term.re != nil {
			candidates = m.regexCandidates(term, ct.Text)
		} else {
			candidates = m.tokenCandidates(term, toks)
		}

		threshold := m.minConfidence
		if term.def.MinConfidence > 0 {
			threshold = term.def.MinConfidence
		}

		var termHits []document.Hit
		for _, c := range candidates {
			if c.end <= c.start {
				continue
			}
			confidence := ct.SpanConfidence(c.start, c.end) * c.certainty
			if confidence < threshold {
				suppressed++
				continue
			}
			termHits = append(termHits, document.Hit{
				DocumentID: docID,
				PageIndex:  ct.PageIndex,
				Term:       term.def.Term,
				Category:   term.def.Category,
				Start:      c.start,
				End:        c.end,
				Matched:    ct.Text[c.start:c.end],
				Confidence: confidence,
				Context:    contextAround(ct.Text, c.start, c.end),
			})
		}

		hits = append(hits, dedupeOverlaps(termHits)...)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		return hits[i].Term < hits[j].Term
	})

	return hits, suppressed
}

// candidate is a potential hit before confidence scoring.
type candidate struct {
	start, end int
	certainty  float64
}

// canonToken is one canonical-text token with its byte offsets.
type canonToken struct {
	norm       string
	start, end int
}

func tokenizeCanonical(text string) []canonToken {
	var toks []canonToken
	i := 0
	for i < len(text) {
		for i < len(text) && text[i] == ' ' {
			i++
		}
		if i >= len(text) {
			break
		}
		start := i
		for i < len(text) && text[i] != ' ' {
			i++
		}
		toks = append(toks, canonToken{
			norm:  normalizeWord(text[start:i]),
			start: start,
			end:   i,
		})
	}
	return toks
}

// tokenCandidates slides a window of the term's token count across the page
// tokens. Exact and case-insensitive terms require equality on the
// normalized tokens; fuzzy terms allow a bounded per-token edit distance.
func (m *Matcher) tokenCandidates(term compiledTerm, toks []canonToken) []candidate {
	n := len(term.normTokens)
	if n == 0 || n > len(toks) {
		return nil
	}

	var out []candidate
	for i := 0; i+n <= len(toks); i++ {
		switch term.def.Mode {
		case document.MatchFuzzy:
			total, ok := 0, true
			for j := 0; j < n; j++ {
				d := editDistance(toks[i+j].norm, term.normTokens[j])
				if d > term.def.MaxDistance {
					ok = false
					break
				}
				total += d
			}
			if ok {
				out = append(out, candidate{
					start:     toks[i].start,
					end:       toks[i+n-1].end,
					certainty: fuzzyCertainty(total),
				})
			}
		default: // exact, case-insensitive
			match := true
			for j := 0; j < n; j++ {
				if toks[i+j].norm != term.normTokens[j] {
					match = false
					break
				}
			}
			if match {
				out = append(out, candidate{
					start:     toks[i].start,
					end:       toks[i+n-1].end,
					certainty: 1.0,
				})
			}
		}
	}
	return out
}

func (m *Matcher) regexCandidates(term compiledTerm, text string) []candidate {
	var out []candidate
	for _, loc := range term.re.FindAllStringIndex(text, -1) {
		if loc[1] == loc[0] {
			continue // a zero-width match is never a hit
		}
		out = append(out, candidate{start: loc[0], end: loc[1], certainty: 1.0})
	}
	return out
}

// fuzzyCertainty decreases with total edit distance; distance zero is as
// certain as an exact match.
func fuzzyCertainty(distance int) float64 {
	c := 1.0 - 0.15*float64(distance)
	if c < 0.4 {
		return 0.4
	}
	return c
}

// dedupeOverlaps drops overlapping hits for the same term, keeping the
// highest-confidence one.
func dedupeOverlaps(hits []document.Hit) []document.Hit {
	if len(hits) <= 1 {
		return hits
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Confidence != hits[j].Confidence {
			return hits[i].Confidence > hits[j].Confidence
		}
		return hits[i].Start < hits[j].Start
	})

	var kept []document.Hit
	for _, h := range hits {
		overlaps := false
		for _, k := range kept {
			if h.Start < k.End && k.Start < h.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, h)
		}
	}
	return kept
}

func contextAround(text string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// normalizeWord applies NFKC folding and lowercasing so visually equivalent
// OCR output compares equal.
func normalizeWord(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// normalizeTokens normalizes and whitespace-collapses a term string.
func normalizeTokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, normalizeWord(f))
	}
	return out
}

// editDistance is the Levenshtein distance between two strings, computed
// over bytes; canonical tokens are NFKC-normalized first so this is close
// enough to rune distance for OCR noise.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
