package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
)

// TesseractEngine wraps the linked Tesseract library via gosseract.
type TesseractEngine struct{}

// NewTesseractEngine creates the Tesseract-backed OCR adapter.
func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Available probes whether the Tesseract library and its trained data can be
// loaded at all.
func (e *TesseractEngine) Available() bool {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version() != ""
}

// Recognize performs OCR on a single page bitmap. The blocking library call
// runs in its own goroutine so the caller's deadline is honored; a deadline
// hit reports the engine unavailable for this page.
func (e *TesseractEngine) Recognize(ctx context.Context, in Input) (document.OcrResult, error) {
	type outcome struct {
		result document.OcrResult
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		res, err := e.recognize(in)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.Name(), in.PageIndex, ctx.Err())
	case out := <-done:
		return out.result, out.err
	}
}

func (e *TesseractEngine) recognize(in Input) (document.OcrResult, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(in.Bitmap); err != nil {
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.Name(), in.PageIndex, fmt.Errorf("set image: %w", err))
	}
	if in.Language != "" {
		if err := client.SetLanguage(in.Language); err != nil {
			return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.Name(), in.PageIndex, fmt.Errorf("set language: %w", err))
		}
	}
	if in.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.Name(), in.PageIndex, fmt.Errorf("set dpi: %w", err))
		}
	}

	text, err := client.Text()
	if err != nil {
		return document.OcrResult{}, scanerrors.NewEngineUnavailableError(e.Name(), in.PageIndex, fmt.Errorf("recognize text: %w", err))
	}

	result := document.OcrResult{
		Engine:    e.Name(),
		PageIndex: in.PageIndex,
		RawText:   strings.TrimSpace(text),
		Tokens:    extractWords(client),
	}

	// No word boxes but some text: fall back to plain tokens.
	if len(result.Tokens) == 0 && result.RawText != "" {
		result.Tokens = tokensFromText(result.RawText)
	}

	return result, nil
}

// extractWords pulls word-level bounding boxes and confidences from the
// client. Tesseract reports confidence on a 0-100 scale.
func extractWords(client *gosseract.Client) []document.Token {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil
	}

	tokens := make([]document.Token, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		tokens = append(tokens, document.Token{
			Text: word,
			Bounds: document.Region{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Confidence: b.Confidence / 100.0,
		})
	}
	return tokens
}
