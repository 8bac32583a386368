package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadLayersOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
location: ./data/store.db
chunk_size: 50
log:
  level: debug
metrics:
  enabled: true
  tags: "env:test,service:loader"
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Location != "./data/store.db" {
		t.Errorf("Location = %q", c.Location)
	}
	if c.ChunkSize != 50 {
		t.Errorf("ChunkSize = %d", c.ChunkSize)
	}
	if c.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", c.Log.Level)
	}
	// Untouched fields keep their defaults.
	if c.RetryAttempts != 5 {
		t.Errorf("RetryAttempts = %d, want default 5", c.RetryAttempts)
	}
	if c.Log.Format != "console" {
		t.Errorf("Log.Format = %q, want default console", c.Log.Format)
	}
	if !c.Metrics.Enabled || c.Metrics.Tags != "env:test,service:loader" {
		t.Errorf("Metrics = %+v", c.Metrics)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: want error")
	}

	bad := writeFile(t, "location: [unclosed")
	if _, err := Load(bad); err == nil {
		t.Error("malformed yaml: want error")
	}
}
