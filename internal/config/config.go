// Package config loads the CLI's runtime configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Config is the file-level shape. Every field has a working default so a
// minimal file (or none at all) still yields a usable configuration.
type Config struct {
	// Location is the database to open: a file path, an ODBC-style
	// server string, or the name of an environment variable holding
	// either.
	Location string `yaml:"location"`

	// Backend forces an engine kind ("sqlite", "access", "sqlserver")
	// instead of detecting one from Location.
	Backend string `yaml:"backend"`

	// CreateIfMissing allows creating a new embedded database file.
	CreateIfMissing bool `yaml:"create_if_missing"`

	// ChunkSize is rows per INSERT statement on append.
	ChunkSize int `yaml:"chunk_size"`

	// RetryAttempts bounds busy retries per statement.
	RetryAttempts int `yaml:"retry_attempts"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Metrics struct {
		Enabled    bool   `yaml:"enabled"`
		JobName    string `yaml:"job_name"`
		Tags       string `yaml:"tags"` // comma-separated "k:v" pairs
		FlushEvery string `yaml:"flush_every"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.ChunkSize = 100
	c.RetryAttempts = 5
	c.Log.Level = "info"
	c.Log.Format = "console"
	return c
}

// Load reads and parses a YAML config file, layering it over Default.
func Load(path string) (Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}
