/**
 * EmTechScan worker - main entry point.
 *
 * Two modes:
 *   scanworker scan <file>   run the pipeline in-process and print the report
 *   scanworker serve         consume scan jobs from the Redis queue
 *
 * The pipeline is the same in both: rasterize → dual OCR → consensus merge →
 * term match → aggregate.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/emtechscan/scan-worker/internal/config"
	"github.com/emtechscan/scan-worker/internal/logging"
	"github.com/emtechscan/scan-worker/internal/match"
	"github.com/emtechscan/scan-worker/internal/metrics"
	"github.com/emtechscan/scan-worker/internal/pipeline"
	"github.com/emtechscan/scan-worker/internal/queue"
	"github.com/emtechscan/scan-worker/internal/report"
	"github.com/emtechscan/scan-worker/internal/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "scanworker",
		Short:        "Scans paper-sourced documents for emerging technology terms",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil {
				logging.NewLogger("main").Debug(".env not found, using system environment")
			}
		},
	}

	root.AddCommand(newScanCmd())
	root.AddCommand(newServeCmd())
	return root
}

// buildScanner assembles the production pipeline from configuration.
func buildScanner(cfg *config.Config, met *metrics.Metrics) (*pipeline.Scanner, error) {
	termFile, err := match.LoadTermFile(cfg.TermsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load term list: %w", err)
	}

	matcher, err := match.NewMatcher(termFile, cfg.MinConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to compile term list: %w", err)
	}

	return pipeline.DefaultScanner(
		cfg.RasterDPI,
		cfg.OCRLanguage,
		cfg.CLIEngineCommand,
		cfg.TempDir,
		cfg.PrimaryEngine,
		matcher,
		met,
		pipeline.Options{
			PageConcurrency: cfg.PageConcurrency,
			EngineTimeout:   time.Duration(cfg.EngineTimeout) * time.Millisecond,
		},
	), nil
}

func newScanCmd() *cobra.Command {
	var outputPath string
	var termsPath string

	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Scan a single PDF or image and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if termsPath != "" {
				cfg.TermsPath = termsPath
			}

			scanner, err := buildScanner(cfg, nil)
			if err != nil {
				return err
			}

			doc, err := pipeline.IngestFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.ProcessingTimeout)*time.Millisecond)
			defer cancel()

			rep := scanner.Scan(ctx, doc)

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			if err := report.WriteText(out, rep); err != nil {
				return err
			}

			if rep.Failed {
				return fmt.Errorf("scan failed: %s", rep.FailureReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().StringVar(&termsPath, "terms", "", "term list YAML (defaults to TERMS_PATH)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger("main")

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			log.Info("Scan worker starting",
				"redis", cfg.RedisURL, "queue", cfg.QueueName,
				"concurrency", cfg.PageConcurrency, "dpi", cfg.RasterDPI)

			met := metrics.New()
			if cfg.MetricsAddr != "" {
				shutdown := metrics.StartServer(cfg.MetricsAddr)
				defer shutdown(context.Background())
			}

			scanner, err := buildScanner(cfg, met)
			if err != nil {
				return err
			}

			var store *storage.PostgresStore
			if cfg.DatabaseURL != "" {
				store, err = storage.NewPostgresStore(cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("failed to connect to storage: %w", err)
				}
				defer store.Close()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := store.EnsureSchema(ctx); err != nil {
					cancel()
					return err
				}
				cancel()
				log.Info("Storage initialized")
			} else {
				log.Warn("DATABASE_URL not set; reports will not be persisted")
			}

			consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
				RedisURL:          cfg.RedisURL,
				QueueName:         cfg.QueueName,
				Concurrency:       cfg.PageConcurrency,
				ProcessingTimeout: time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
				Scanner:           scanner,
				Store:             store,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize queue consumer: %w", err)
			}

			if err := consumer.Start(); err != nil {
				return fmt.Errorf("failed to start queue consumer: %w", err)
			}
			log.Info("Scan worker ready, waiting for jobs")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
			sig := <-sigChan
			log.Info("Received signal, shutting down", "signal", sig)

			if err := consumer.Stop(); err != nil {
				log.Error("Error stopping queue consumer", "error", err)
			}
			log.Info("Shutdown complete")
			return nil
		},
	}
}
