/**
 * Queue consumer for the scan worker.
 *
 * Scan jobs arrive on a Redis-backed queue via asynq. Each job names a
 * document (path or inline bytes); the handler runs the scan pipeline under
 * the processing timeout, persists the report, and mirrors job state into
 * Redis sets so other services can watch progress.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/emtechscan/scan-worker/internal/document"
	scanerrors "github.com/emtechscan/scan-worker/internal/errors"
	"github.com/emtechscan/scan-worker/internal/logging"
	"github.com/emtechscan/scan-worker/internal/pipeline"
	"github.com/emtechscan/scan-worker/internal/storage"
)

// TaskTypeScanDocument is the asynq task type handled by this worker.
const TaskTypeScanDocument = "scan-document"

// ScanJob is the payload of a scan task.
type ScanJob struct {
	ScanID     string `json:"scanId"`
	SourcePath string `json:"sourcePath,omitempty"`
	FileData   []byte `json:"fileData,omitempty"` // inline document bytes, base64 on the wire
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	ProcessingTimeout time.Duration
	Scanner           *pipeline.Scanner
	Store             *storage.PostgresStore // optional; reports are skipped when nil
}

// Consumer handles scan job consumption from the Redis queue.
type Consumer struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	rdb     *redis.Client
	scanner *pipeline.Scanner
	store   *storage.PostgresStore
	config  *ConsumerConfig
	log     *logging.Logger
}

// NewConsumer creates a new queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("Scanner is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "emtechscan:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(rOpt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logging.NewLogger("queue")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff: 5s, 10s, 20s, capped at a minute.
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	consumer := &Consumer{
		client:  asynq.NewClient(redisOpt),
		server:  server,
		mux:     asynq.NewServeMux(),
		rdb:     rdb,
		scanner: cfg.Scanner,
		store:   cfg.Store,
		config:  cfg,
		log:     log,
	}
	consumer.mux.HandleFunc(TaskTypeScanDocument, consumer.handleScanDocument)

	return consumer, nil
}

// Enqueue submits a scan job to the queue.
func (c *Consumer) Enqueue(ctx context.Context, job *ScanJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scan job: %w", err)
	}
	task := asynq.NewTask(TaskTypeScanDocument, payload)
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName)); err != nil {
		return fmt.Errorf("failed to enqueue scan job: %w", err)
	}
	return nil
}

// Start starts the queue consumer.
func (c *Consumer) Start() error {
	c.log.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.log.Error("Queue consumer error", "error", err)
		}
	}()
	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop() error {
	c.log.Info("Stopping queue consumer")
	c.server.Shutdown()
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	return c.rdb.Close()
}

// handleScanDocument processes one scan job.
func (c *Consumer) handleScanDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job ScanJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal scan job: %w", err)
	}

	doc, err := c.ingest(&job)
	if err != nil {
		c.setJobStatus(job.ScanID, "failed", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to ingest document: %w", err)
	}
	if job.ScanID != "" {
		doc.ID = job.ScanID
	}

	c.log.Info("Processing scan job", "scan", doc.ID, "source", doc.SourcePath, "bytes", len(doc.Data))
	c.setJobStatus(doc.ID, "processing", nil)
	if c.store != nil {
		if err := c.store.UpdateScanStatus(ctx, doc.ID, doc.SourcePath, "processing"); err != nil {
			c.log.Warn("Failed to update scan status", "scan", doc.ID, "error", err)
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx, c.config.ProcessingTimeout)
	defer cancel()

	rep := c.scanner.Scan(scanCtx, doc)
	duration := time.Since(startTime)

	if scanCtx.Err() == context.DeadlineExceeded && rep.Failed {
		timeoutErr := scanerrors.NewProcessingTimeoutError(doc.ID, c.config.ProcessingTimeout, scanCtx.Err())
		c.setJobStatus(doc.ID, "failed", timeoutErr.ToMap())
		c.persistReport(ctx, rep)
		return fmt.Errorf("processing timeout: %w", timeoutErr)
	}

	c.persistReport(ctx, rep)

	status := "completed"
	if rep.Failed {
		status = "failed"
	}
	c.setJobStatus(doc.ID, status, map[string]interface{}{
		"hits":           len(rep.Hits),
		"pageCount":      rep.PageCount,
		"failedPages":    len(rep.FailedPages),
		"suppressedHits": rep.SuppressedHits,
		"processingTime": duration.Milliseconds(),
	})

	c.log.Info("Scan job finished", "scan", doc.ID, "status", status,
		"hits", len(rep.Hits), "duration", duration)

	// Document-level failures are input problems surfaced in the report;
	// retrying the task will not help, so the task itself succeeds.
	return nil
}

func (c *Consumer) ingest(job *ScanJob) (*document.Document, error) {
	if len(job.FileData) > 0 {
		return pipeline.IngestBytes(job.SourcePath, job.FileData), nil
	}
	if job.SourcePath != "" {
		return pipeline.IngestFile(job.SourcePath)
	}
	return nil, fmt.Errorf("scan job has neither sourcePath nor fileData")
}

func (c *Consumer) persistReport(ctx context.Context, rep *document.ScanReport) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveReport(ctx, rep); err != nil {
		c.log.Error("Failed to persist report", "scan", rep.DocumentID, "error", err)
	}
}

// setJobStatus mirrors job state into Redis sets and publishes an event so
// the review surface can stream progress.
func (c *Consumer) setJobStatus(scanID, status string, detail map[string]interface{}) {
	ctx := context.Background()
	queue := c.config.QueueName

	switch status {
	case "processing":
		c.rdb.SAdd(ctx, fmt.Sprintf("%s:processing", queue), scanID)
	case "completed":
		c.rdb.SRem(ctx, fmt.Sprintf("%s:processing", queue), scanID)
		c.rdb.SAdd(ctx, fmt.Sprintf("%s:completed", queue), scanID)
	case "failed":
		c.rdb.SRem(ctx, fmt.Sprintf("%s:processing", queue), scanID)
		c.rdb.SAdd(ctx, fmt.Sprintf("%s:failed", queue), scanID)
	}

	if detail != nil {
		if data, err := json.Marshal(detail); err == nil {
			c.rdb.HSet(ctx, fmt.Sprintf("%s:results", queue), scanID, data)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("scan:%s", status),
		"scanId":    scanID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if data, err := json.Marshal(event); err == nil {
		c.rdb.Publish(ctx, fmt.Sprintf("%s:events", queue), data)
	}
}

// Stats returns queue statistics.
func (c *Consumer) Stats(ctx context.Context) (map[string]int64, error) {
	queue := c.config.QueueName

	processing, err := c.rdb.SCard(ctx, fmt.Sprintf("%s:processing", queue)).Result()
	if err != nil {
		return nil, err
	}
	completed, _ := c.rdb.SCard(ctx, fmt.Sprintf("%s:completed", queue)).Result()
	failed, _ := c.rdb.SCard(ctx, fmt.Sprintf("%s:failed", queue)).Result()

	return map[string]int64{
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
