package match

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/emtechscan/scan-worker/internal/document"
)

// TermFile is the on-disk YAML layout of the term list.
type TermFile struct {
	MinConfidence float64                   `yaml:"min_confidence"`
	Terms         []document.TermDefinition `yaml:"terms"`
}

// defaultFuzzyDistance is the per-token edit distance used when a fuzzy term
// does not set its own.
const defaultFuzzyDistance = 1

// LoadTermFile reads and validates the term list. The result is read-only
// for the lifetime of the process.
func LoadTermFile(path string) (*TermFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read term list: %w", err)
	}
	return ParseTermFile(data)
}

// ParseTermFile parses and validates YAML term list content.
func ParseTermFile(data []byte) (*TermFile, error) {
	var tf TermFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse term list: %w", err)
	}

	if len(tf.Terms) == 0 {
		return nil, fmt.Errorf("term list contains no terms")
	}
	if tf.MinConfidence < 0 || tf.MinConfidence > 1 {
		return nil, fmt.Errorf("min_confidence must be in [0,1], got %f", tf.MinConfidence)
	}

	for i := range tf.Terms {
		t := &tf.Terms[i]
		if t.Term == "" {
			return nil, fmt.Errorf("term %d: empty term string", i)
		}
		if t.Mode == "" {
			t.Mode = document.MatchCaseInsensitive
		}
		switch t.Mode {
		case document.MatchExact, document.MatchCaseInsensitive:
		case document.MatchFuzzy:
			if t.MaxDistance <= 0 {
				t.MaxDistance = defaultFuzzyDistance
			}
		case document.MatchRegex:
			if _, err := regexp.Compile(t.Term); err != nil {
				return nil, fmt.Errorf("term %q: invalid regex: %w", t.Term, err)
			}
		default:
			return nil, fmt.Errorf("term %q: unknown match mode %q", t.Term, t.Mode)
		}
		if t.MinConfidence < 0 || t.MinConfidence > 1 {
			return nil, fmt.Errorf("term %q: min_confidence must be in [0,1]", t.Term)
		}
		if t.Category == "" {
			t.Category = "uncategorized"
		}
	}

	return &tf, nil
}
