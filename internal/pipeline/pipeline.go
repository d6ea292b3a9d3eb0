/**
 * Scan pipeline orchestration.
 *
 * Pages are independent: each one is rasterized, recognized by both OCR
 * engines concurrently, merged, and matched without touching any other page.
 * A bounded worker pool drives page-level parallelism; the aggregator is the
 * only shared-mutable sink. Page failures are recorded and never abort the
 * document; only total ingestion failure produces a failed report.
 */

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
	"github.com/emtechscan/scan-worker/internal/logging"
	"github.com/emtechscan/scan-worker/internal/match"
	"github.com/emtechscan/scan-worker/internal/merge"
	"github.com/emtechscan/scan-worker/internal/metrics"
	"github.com/emtechscan/scan-worker/internal/ocr"
	"github.com/emtechscan/scan-worker/internal/rasterize"
	"github.com/emtechscan/scan-worker/internal/report"
)

// Rasterizer converts an ingested document into per-page bitmaps.
type Rasterizer interface {
	Rasterize(doc *document.Document) ([]*document.Page, error)
}

// Options configures a Scanner.
type Options struct {
	PageConcurrency int
	EngineTimeout   time.Duration
	DPI             int
	Language        string
}

// Scanner runs the full document pipeline.
type Scanner struct {
	rast    Rasterizer
	engineA ocr.Engine
	engineB ocr.Engine
	merger  *merge.Merger
	matcher *match.Matcher
	met     *metrics.Metrics // optional
	opts    Options
	log     *logging.Logger
}

// NewScanner wires a pipeline from its components. met may be nil.
func NewScanner(rast Rasterizer, engineA, engineB ocr.Engine, merger *merge.Merger, matcher *match.Matcher, met *metrics.Metrics, opts Options) *Scanner {
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = 4
	}
	if opts.EngineTimeout <= 0 {
		opts.EngineTimeout = time.Minute
	}
	return &Scanner{
		rast:    rast,
		engineA: engineA,
		engineB: engineB,
		merger:  merger,
		matcher: matcher,
		met:     met,
		opts:    opts,
		log:     logging.NewLogger("pipeline"),
	}
}

// IngestFile reads a document from disk and assigns it an identifier.
func IngestFile(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return IngestBytes(filepath.Base(path), data), nil
}

// IngestBytes wraps raw document bytes for scanning.
func IngestBytes(sourcePath string, data []byte) *document.Document {
	return &document.Document{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		Data:       data,
		Status:     document.DocIngested,
	}
}

// Scan runs the whole pipeline for one document and always returns a report.
// Document-level ingestion failures surface as a failed report with zero
// hits, never as a panic or a bare error past this boundary.
func (s *Scanner) Scan(ctx context.Context, doc *document.Document) *document.ScanReport {
	started := time.Now()
	agg := report.NewAggregator(doc.ID, doc.SourcePath, 0)

	s.log.Info("Scan started", "document", doc.ID, "source", doc.SourcePath, "bytes", len(doc.Data))

	doc.Status = document.DocRasterizing
	pages, err := s.rast.Rasterize(doc)
	if err != nil {
		s.log.Error("Rasterization failed", "document", doc.ID, "error", err)
		doc.Status = document.DocFailed
		if s.met != nil {
			s.met.DocumentsTotal.WithLabelValues("failed").Inc()
		}
		return agg.FailDocument(err.Error())
	}

	doc.Pages = pages
	agg.SetPageCount(len(pages))

	doc.Status = document.DocRecognizing
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PageConcurrency)

	for _, page := range pages {
		if page.Status == document.PageFailed {
			// Rasterizer already gave up on this page.
			agg.RecordPageFailure(page.Index, page.FailureCode, page.FailureReason)
			s.countPageFailure(page.FailureCode)
			continue
		}
		page := page
		g.Go(func() error {
			s.processPage(gctx, doc, page, agg)
			return nil
		})
	}

	// Workers never return errors; page failures land in the aggregator.
	_ = g.Wait()

	doc.Status = document.DocAggregated
	rep := agg.Finalize()

	if rep.Failed {
		doc.Status = document.DocFailed
	} else {
		doc.Status = document.DocReported
	}

	if s.met != nil {
		outcome := "completed"
		if rep.Failed {
			outcome = "failed"
		}
		s.met.DocumentsTotal.WithLabelValues(outcome).Inc()
		s.met.ScanDuration.Observe(time.Since(started).Seconds())
	}

	s.log.Info("Scan finished", "document", doc.ID,
		"pages", rep.PageCount, "hits", len(rep.Hits),
		"failed_pages", len(rep.FailedPages), "suppressed", rep.SuppressedHits,
		"duration", time.Since(started))

	return rep
}

// processPage runs one page through OCR, merge, and match. All failures are
// recorded on the page and in the aggregator; nothing propagates.
func (s *Scanner) processPage(ctx context.Context, doc *document.Document, page *document.Page, agg *report.Aggregator) {
	if ctx.Err() != nil {
		s.failPage(page, agg, string(scanerrors.ErrorProcessingTimeout), "scan cancelled before page processing")
		return
	}

	// Both engines run concurrently on the same read-only bitmap and write
	// disjoint results; the join point is the WaitGroup.
	var (
		wg         sync.WaitGroup
		resA, resB document.OcrResult
		errA, errB error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		resA, errA = s.invokeEngine(ctx, s.engineA, page)
	}()
	go func() {
		defer wg.Done()
		resB, errB = s.invokeEngine(ctx, s.engineB, page)
	}()
	wg.Wait()

	// The bitmap is consumed; free it before merge and match.
	page.Bitmap = nil

	if errA != nil && errB != nil {
		s.failPage(page, agg, string(scanerrors.ErrorEngineUnavailable),
			fmt.Sprintf("both engines unavailable: %v; %v", errA, errB))
		return
	}
	if err := page.Advance(document.PageRecognized); err != nil {
		s.failPage(page, agg, string(scanerrors.ErrorCorruptDocument), err.Error())
		return
	}

	ct, err := s.merger.Merge(doc.ID, resA, resB)
	if err != nil {
		s.failPage(page, agg, string(scanerrors.CodeOf(err)), err.Error())
		return
	}
	page.Canonical = ct
	if err := page.Advance(document.PageMerged); err != nil {
		s.failPage(page, agg, string(scanerrors.ErrorCorruptDocument), err.Error())
		return
	}
	if s.met != nil {
		s.met.MergeConfidence.Observe(ct.MergeConfidence)
	}

	hits, suppressed := s.matcher.Match(doc.ID, ct)
	if err := page.Advance(document.PageMatched); err != nil {
		s.failPage(page, agg, string(scanerrors.ErrorCorruptDocument), err.Error())
		return
	}

	for _, h := range hits {
		if err := agg.Record(h); err != nil {
			s.log.Warn("Hit dropped after finalize", "document", doc.ID, "page", page.Index, "term", h.Term)
			continue
		}
		if s.met != nil {
			s.met.HitsRecorded.WithLabelValues(h.Category).Inc()
		}
	}
	if suppressed > 0 {
		agg.RecordSuppressed(suppressed)
		if s.met != nil {
			s.met.HitsSuppressed.Add(float64(suppressed))
		}
	}

	if s.met != nil {
		s.met.PagesProcessed.Inc()
	}
	s.log.Debug("Page processed", "document", doc.ID, "page", page.Index,
		"merge_confidence", fmt.Sprintf("%.2f", ct.MergeConfidence), "hits", len(hits))
}

// invokeEngine runs one engine with the per-engine timeout. An engine error
// degrades to an empty result for the merge; the error is kept so the page
// can be failed when both engines are out.
func (s *Scanner) invokeEngine(ctx context.Context, engine ocr.Engine, page *document.Page) (document.OcrResult, error) {
	ectx, cancel := context.WithTimeout(ctx, s.opts.EngineTimeout)
	defer cancel()

	started := time.Now()
	res, err := engine.Recognize(ectx, ocr.Input{
		PageIndex: page.Index,
		Bitmap:    page.Bitmap,
		DPI:       s.opts.DPI,
		Language:  s.opts.Language,
	})

	if s.met != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.met.EngineInvocations.WithLabelValues(engine.Name(), outcome).Inc()
		s.met.EngineLatency.WithLabelValues(engine.Name()).Observe(time.Since(started).Seconds())
	}

	if err != nil {
		s.log.Warn("Engine failed for page", "engine", engine.Name(), "page", page.Index, "error", err)
		return document.OcrResult{Engine: engine.Name(), PageIndex: page.Index}, err
	}
	return res, nil
}

func (s *Scanner) failPage(page *document.Page, agg *report.Aggregator, code, reason string) {
	page.Fail(code, reason)
	agg.RecordPageFailure(page.Index, code, reason)
	s.countPageFailure(code)
}

func (s *Scanner) countPageFailure(code string) {
	if s.met != nil {
		s.met.PagesFailed.WithLabelValues(code).Inc()
	}
}

// DefaultScanner builds the production pipeline: MuPDF rasterizer, Tesseract
// plus an external CLI engine, and the configured merger and matcher.
func DefaultScanner(dpi int, language, cliCommand, tempDir, primaryEngine string, matcher *match.Matcher, met *metrics.Metrics, opts Options) *Scanner {
	engineA := ocr.NewTesseractEngine()
	engineB := ocr.NewCLIEngine(cliCommand, language, tempDir)

	log := logging.NewLogger("pipeline")
	if !engineA.Available() {
		log.Warn("Tesseract engine unavailable; pages will rely on the CLI engine", "engine", engineA.Name())
	}
	if !engineB.Available() {
		log.Warn("CLI engine not found in PATH; pages will rely on Tesseract", "engine", engineB.Name())
	}

	opts.DPI = dpi
	opts.Language = language
	return NewScanner(
		rasterize.New(dpi),
		engineA,
		engineB,
		merge.NewMerger(primaryEngine),
		matcher,
		met,
		opts,
	)
}
