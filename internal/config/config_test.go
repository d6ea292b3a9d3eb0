package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.QueueName != "emtechscan:jobs" {
		t.Errorf("QueueName = %s", cfg.QueueName)
	}
	if cfg.RasterDPI != 300 {
		t.Errorf("RasterDPI = %d", cfg.RasterDPI)
	}
	if cfg.PrimaryEngine != "tesseract" {
		t.Errorf("PrimaryEngine = %s", cfg.PrimaryEngine)
	}
	if cfg.MinConfidence != 0.35 {
		t.Errorf("MinConfidence = %f", cfg.MinConfidence)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RASTER_DPI", "150")
	t.Setenv("PAGE_CONCURRENCY", "8")
	t.Setenv("PRIMARY_ENGINE", "cuneiform")
	t.Setenv("MIN_CONFIDENCE", "0.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RasterDPI != 150 || cfg.PageConcurrency != 8 {
		t.Errorf("int overrides not applied: %d / %d", cfg.RasterDPI, cfg.PageConcurrency)
	}
	if cfg.PrimaryEngine != "cuneiform" {
		t.Errorf("PrimaryEngine = %s", cfg.PrimaryEngine)
	}
	if cfg.MinConfidence != 0.5 {
		t.Errorf("MinConfidence = %f", cfg.MinConfidence)
	}
}

func TestLoadConfigMalformedValueFallsBack(t *testing.T) {
	t.Setenv("RASTER_DPI", "very high")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RasterDPI != 300 {
		t.Errorf("malformed int must fall back to default, got %d", cfg.RasterDPI)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RasterDPI:       300,
			PageConcurrency: 4,
			EngineTimeout:   60000,
			MinConfidence:   0.35,
			PrimaryEngine:   "tesseract",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dpi too low", func(c *Config) { c.RasterDPI = 30 }},
		{"dpi too high", func(c *Config) { c.RasterDPI = 2400 }},
		{"zero concurrency", func(c *Config) { c.PageConcurrency = 0 }},
		{"tiny engine timeout", func(c *Config) { c.EngineTimeout = 10 }},
		{"confidence out of range", func(c *Config) { c.MinConfidence = 1.5 }},
		{"no primary engine", func(c *Config) { c.PrimaryEngine = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
