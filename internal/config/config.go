/**
 * Configuration for the scan worker.
 *
 * Loads configuration from environment variables; the term list itself lives
 * in a separate YAML file referenced by TERMS_PATH.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds worker configuration
type Config struct {
	// Redis queue configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration
	DatabaseURL string

	// Term list configuration
	TermsPath string

	// Pipeline configuration
	RasterDPI         int
	PageConcurrency   int     // pages processed in parallel per document
	EngineTimeout     int     // per (page, engine) OCR timeout in milliseconds
	ProcessingTimeout int     // whole-document timeout in milliseconds
	MinConfidence     float64 // hits below this are suppressed
	PrimaryEngine     string  // tie-break engine for merge disagreements

	// OCR engine configuration
	OCRLanguage      string
	CLIEngineCommand string // external engine binary (cuneiform or gocr)

	// Metrics endpoint; empty disables the HTTP listener
	MetricsAddr string

	// Temporary directory for page bitmaps
	TempDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "emtechscan:jobs"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		TermsPath:         getEnvOrDefault("TERMS_PATH", "terms.yaml"),
		RasterDPI:         getEnvAsIntOrDefault("RASTER_DPI", 300),
		PageConcurrency:   getEnvAsIntOrDefault("PAGE_CONCURRENCY", 4),
		EngineTimeout:     getEnvAsIntOrDefault("ENGINE_TIMEOUT", 60000),      // 1 minute
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		MinConfidence:     getEnvAsFloatOrDefault("MIN_CONFIDENCE", 0.35),
		PrimaryEngine:     getEnvOrDefault("PRIMARY_ENGINE", "tesseract"),
		OCRLanguage:       getEnvOrDefault("OCR_LANGUAGE", "eng"),
		CLIEngineCommand:  getEnvOrDefault("CLI_ENGINE_COMMAND", "cuneiform"),
		MetricsAddr:       getEnvOrDefault("METRICS_ADDR", ""),
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RasterDPI < 72 || c.RasterDPI > 1200 {
		return fmt.Errorf("RASTER_DPI must be between 72 and 1200, got %d", c.RasterDPI)
	}

	if c.PageConcurrency < 1 || c.PageConcurrency > 64 {
		return fmt.Errorf("PAGE_CONCURRENCY must be between 1 and 64, got %d", c.PageConcurrency)
	}

	if c.EngineTimeout < 1000 {
		return fmt.Errorf("ENGINE_TIMEOUT must be at least 1000ms, got %d", c.EngineTimeout)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in [0,1], got %f", c.MinConfidence)
	}

	if c.PrimaryEngine == "" {
		return fmt.Errorf("PRIMARY_ENGINE is required")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
