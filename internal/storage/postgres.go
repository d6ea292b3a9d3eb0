/**
 * PostgreSQL persistence for scan reports.
 *
 * One row per scan plus one row per hit. The category summary is stored as
 * JSONB so the review surface can render counts without re-aggregating.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
)

// PostgresStore handles database operations for scan results.
type PostgresStore struct {
	db *sql.DB
}

// sanitizeConfidence rounds confidence to 4 decimal places and clamps it to
// [0,1]; float noise like 0.9632000000000001 trips NUMERIC casts otherwise.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the scan tables when they do not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS scans (
			id              TEXT PRIMARY KEY,
			source_path     TEXT NOT NULL,
			status          TEXT NOT NULL,
			page_count      INT NOT NULL DEFAULT 0,
			failed_pages    INT NOT NULL DEFAULT 0,
			suppressed_hits INT NOT NULL DEFAULT 0,
			failure_reason  TEXT,
			summary         JSONB,
			started_at      TIMESTAMPTZ,
			finished_at     TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS scan_hits (
			id          BIGSERIAL PRIMARY KEY,
			scan_id     TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
			page_index  INT NOT NULL,
			term        TEXT NOT NULL,
			category    TEXT NOT NULL,
			matched     TEXT NOT NULL,
			confidence  NUMERIC(5,4) NOT NULL,
			context     TEXT NOT NULL,
			span_start  INT NOT NULL,
			span_end    INT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS scan_hits_scan_idx ON scan_hits (scan_id, page_index);
	`
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// UpdateScanStatus upserts the scan row with a new status.
func (p *PostgresStore) UpdateScanStatus(ctx context.Context, scanID, sourcePath, status string) error {
	if scanID == "" {
		return fmt.Errorf("scan ID is required")
	}

	query := `
		INSERT INTO scans (id, source_path, status, started_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = now()
	`
	if _, err := p.db.ExecContext(ctx, query, scanID, sourcePath, status); err != nil {
		return scanerrors.NewStorageFailedError(scanID, err)
	}
	return nil
}

// SaveReport persists a finalized report and its hits in one transaction.
func (p *PostgresStore) SaveReport(ctx context.Context, rep *document.ScanReport) error {
	summary, err := json.Marshal(map[string]interface{}{
		"category_counts": rep.CategoryCounts,
		"failed_pages":    rep.FailedPages,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	status := "completed"
	if rep.Failed {
		status = "failed"
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return scanerrors.NewStorageFailedError(rep.DocumentID, err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO scans (id, source_path, status, page_count, failed_pages,
			suppressed_hits, failure_reason, summary, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			page_count = EXCLUDED.page_count,
			failed_pages = EXCLUDED.failed_pages,
			suppressed_hits = EXCLUDED.suppressed_hits,
			failure_reason = EXCLUDED.failure_reason,
			summary = EXCLUDED.summary,
			finished_at = EXCLUDED.finished_at,
			updated_at = now()
	`
	if _, err := tx.ExecContext(ctx, upsert,
		rep.DocumentID, rep.SourcePath, status, rep.PageCount, len(rep.FailedPages),
		rep.SuppressedHits, rep.FailureReason, summary, rep.StartedAt, rep.FinishedAt,
	); err != nil {
		return scanerrors.NewStorageFailedError(rep.DocumentID, err)
	}

	// Re-saving a report replaces its hits wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_hits WHERE scan_id = $1`, rep.DocumentID); err != nil {
		return scanerrors.NewStorageFailedError(rep.DocumentID, err)
	}

	const insertHit = `
		INSERT INTO scan_hits (scan_id, page_index, term, category, matched,
			confidence, context, span_start, span_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, h := range rep.Hits {
		if _, err := tx.ExecContext(ctx, insertHit,
			rep.DocumentID, h.PageIndex, h.Term, h.Category, h.Matched,
			sanitizeConfidence(h.Confidence), h.Context, h.Start, h.End,
		); err != nil {
			return scanerrors.NewStorageFailedError(rep.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return scanerrors.NewStorageFailedError(rep.DocumentID, err)
	}
	return nil
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
