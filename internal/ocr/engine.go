/**
 * OCR adapters.
 *
 * Two interchangeable engines sit behind the Engine interface: a linked
 * Tesseract client and an external CLI engine in the cuneiform/gocr family.
 * Both take a page bitmap and return recognized text with optional per-token
 * confidences. Empty output is a valid zero-confidence result; only a failure
 * to invoke the engine at all is an error.
 */

package ocr

import (
	"context"
	"strings"

	"github.com/emtechscan/scan-worker/internal/document"
)

// Input is one page bitmap submitted for recognition.
type Input struct {
	PageIndex int
	Bitmap    []byte // PNG-encoded page image
	DPI       int
	Language  string // engine language hint, e.g. "eng"
}

// Engine is the uniform contract over OCR providers. Implementations hold no
// shared mutable state; Recognize may be called concurrently for different
// pages.
type Engine interface {
	Name() string
	// Available reports whether the underlying engine can be invoked.
	// Probed at startup; an unavailable engine is a configuration problem,
	// not a per-page condition.
	Available() bool
	Recognize(ctx context.Context, in Input) (document.OcrResult, error)
}

// tokensFromText splits plain engine output into word tokens with unknown
// confidence. Used by engines that report text only.
func tokensFromText(text string) []document.Token {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	tokens := make([]document.Token, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, document.Token{
			Text:       f,
			Confidence: document.ConfidenceUnknown,
		})
	}
	return tokens
}
