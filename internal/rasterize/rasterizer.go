/**
 * Rasterizer: turns an ingested document into one normalized bitmap per page.
 *
 * PDFs are rendered page by page at the configured DPI via MuPDF (go-fitz);
 * raster images pass through decoding. Every bitmap is grayscale-binarized
 * before the OCR adapters see it. A page that fails to render is marked
 * failed and rasterization continues with the remaining pages.
 */

package rasterize

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
	"github.com/emtechscan/scan-worker/internal/logging"
)

// Rasterizer converts documents into per-page bitmaps.
type Rasterizer struct {
	dpi int
	log *logging.Logger
}

// New creates a rasterizer rendering at the given DPI.
func New(dpi int) *Rasterizer {
	if dpi <= 0 {
		dpi = 300
	}
	return &Rasterizer{
		dpi: dpi,
		log: logging.NewLogger("rasterize"),
	}
}

// Rasterize populates doc.Pages with one bitmap per page.
//
// Returns UNSUPPORTED_FORMAT when the input is neither a recognized image
// nor a parseable PDF (fatal for the document). Individual pages that fail
// to render are marked failed; the good pages are still returned.
func (r *Rasterizer) Rasterize(doc *document.Document) ([]*document.Page, error) {
	format := DetectFormat(doc.Data)

	switch {
	case format == FormatPDF:
		return r.rasterizePDF(doc)
	case format.IsImage():
		return r.rasterizeImage(doc)
	case format == FormatWebP:
		// Sniffed but not decodable with the image stack we carry.
		return nil, scanerrors.NewUnsupportedFormatError(doc.ID, string(format))
	default:
		return nil, scanerrors.NewUnsupportedFormatError(doc.ID, "unrecognized")
	}
}

func (r *Rasterizer) rasterizePDF(doc *document.Document) ([]*document.Page, error) {
	fzDoc, err := fitz.NewFromMemory(doc.Data)
	if err != nil {
		// The header said PDF but the body does not parse at all.
		return nil, scanerrors.NewUnsupportedFormatError(doc.ID, "unparseable PDF")
	}
	defer fzDoc.Close()

	pageCount := fzDoc.NumPage()
	if pageCount == 0 {
		return nil, scanerrors.NewCorruptDocumentError(doc.ID, 0, fmt.Errorf("PDF contains no pages"))
	}

	r.log.Info("Rasterizing PDF", "document", doc.ID, "pages", pageCount, "dpi", r.dpi)

	pages := make([]*document.Page, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		page := &document.Page{Index: i, Status: document.PagePending}
		pages = append(pages, page)

		img, err := fzDoc.ImageDPI(i, float64(r.dpi))
		if err != nil {
			r.log.Warn("Page render failed, continuing", "document", doc.ID, "page", i, "error", err)
			rerr := scanerrors.NewCorruptDocumentError(doc.ID, i, err)
			page.Fail(string(rerr.Code), rerr.Message)
			continue
		}

		bitmap, err := encodeBitmap(img)
		if err != nil {
			rerr := scanerrors.NewCorruptDocumentError(doc.ID, i, err)
			page.Fail(string(rerr.Code), rerr.Message)
			continue
		}

		page.Bitmap = bitmap
		if err := page.Advance(document.PageRasterized); err != nil {
			return nil, err
		}
	}

	return pages, nil
}

func (r *Rasterizer) rasterizeImage(doc *document.Document) ([]*document.Page, error) {
	img, _, err := image.Decode(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, scanerrors.NewUnsupportedFormatError(doc.ID, fmt.Sprintf("undecodable image: %v", err))
	}

	bitmap, err := encodeBitmap(img)
	if err != nil {
		return nil, scanerrors.NewCorruptDocumentError(doc.ID, 0, err)
	}

	page := &document.Page{Index: 0, Bitmap: bitmap, Status: document.PagePending}
	if err := page.Advance(document.PageRasterized); err != nil {
		return nil, err
	}
	return []*document.Page{page}, nil
}

// encodeBitmap binarizes the image and encodes it as PNG for the engines.
func encodeBitmap(img image.Image) ([]byte, error) {
	processed := preprocess(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, processed); err != nil {
		return nil, fmt.Errorf("encode page bitmap: %w", err)
	}
	return buf.Bytes(), nil
}
