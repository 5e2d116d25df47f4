package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v := cfg.Indexer.Vectorizer
	if v.MaxFeatures != 5000 || v.MinDF != 1 || v.MaxDF != 0.95 || v.NgramMin != 1 || v.NgramMax != 2 {
		t.Errorf("unexpected vectorizer defaults: %+v", v)
	}
	if cfg.Indexer.MaxPositions != 10 {
		t.Errorf("MaxPositions = %d, want 10", cfg.Indexer.MaxPositions)
	}
	if cfg.Search.DefaultK != 10 {
		t.Errorf("DefaultK = %d, want 10", cfg.Search.DefaultK)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
indexer:
  dataDir: /tmp/idx
  workers: 2
  docTimeout: 2s
  vectorizer:
    maxFeatures: 100
    minDf: 1
    maxDf: 0.5
    ngramMin: 1
    ngramMax: 1
    stopWords: none
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCRANK_MAX_FEATURES", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Indexer.DataDir != "/tmp/idx" {
		t.Errorf("DataDir = %q", cfg.Indexer.DataDir)
	}
	if cfg.Indexer.DocTimeout != 2*time.Second {
		t.Errorf("DocTimeout = %v", cfg.Indexer.DocTimeout)
	}
	if cfg.Indexer.Vectorizer.MaxFeatures != 42 {
		t.Errorf("MaxFeatures = %d, want env override 42", cfg.Indexer.Vectorizer.MaxFeatures)
	}
	if cfg.Indexer.Vectorizer.MaxDF != 0.5 {
		t.Errorf("MaxDF = %g", cfg.Indexer.Vectorizer.MaxDF)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"max df above one", func(c *Config) { c.Indexer.Vectorizer.MaxDF = 1.5 }},
		{"max df zero", func(c *Config) { c.Indexer.Vectorizer.MaxDF = 0 }},
		{"inverted ngram range", func(c *Config) { c.Indexer.Vectorizer.NgramMin = 3 }},
		{"zero default k", func(c *Config) { c.Search.DefaultK = 0 }},
		{"max k below default", func(c *Config) { c.Search.MaxK = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
