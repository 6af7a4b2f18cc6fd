// Package config holds the migration run configuration: a YAML file merged
// with environment overrides, validated before any scan begins.
package config

import (
	"os"
	"strconv"
	"time"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize  = 100
	DefaultWorkers    = 1
	DefaultListenAddr = ":8080"
)

// Duration wraps time.Duration so YAML values can be written as "1s",
// "250ms" and so on.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Endpoint identifies one side of the migration.
type Endpoint struct {
	URI       string `yaml:"uri"`
	Database  string `yaml:"database"`
	Container string `yaml:"container"`
}

// Config is everything one migration run needs. The engine receives it as
// an explicit value; nothing inside the engine reads the environment.
type Config struct {
	Source      Endpoint `yaml:"source"`
	Destination Endpoint `yaml:"destination"`

	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`

	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`

	// AlwaysReconcile makes verification compute the id difference even
	// when the counts match.
	AlwaysReconcile bool `yaml:"verify_always_reconcile"`

	// ListenAddr is only used by serve mode.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		BatchSize:   DefaultBatchSize,
		Workers:     DefaultWorkers,
		MaxAttempts: 3,
		BaseDelay:   Duration(time.Second),
		ListenAddr:  DefaultListenAddr,
	}
}

// Load reads the optional YAML file at path (skipped when path is empty)
// and applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setEnv(&c.Source.URI, "SOURCE_URI")
	setEnv(&c.Source.Database, "SOURCE_DATABASE_NAME")
	setEnv(&c.Source.Container, "SOURCE_CONTAINER_NAME")
	setEnv(&c.Destination.URI, "DESTINATION_URI")
	setEnv(&c.Destination.Database, "DESTINATION_DATABASE_NAME")
	setEnv(&c.Destination.Container, "DESTINATION_CONTAINER_NAME")

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("parsing BATCH_SIZE %q: %w", v, err)
		}
		c.BatchSize = n
	}
	return nil
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects configurations that could start a partial run. It runs
// before any connection is opened.
func (c Config) Validate() error {
	if c.Source.URI == "" || c.Source.Database == "" || c.Source.Container == "" {
		return errors.New("source uri, database and container are required")
	}
	if c.Destination.URI == "" || c.Destination.Database == "" || c.Destination.Container == "" {
		return errors.New("destination uri, database and container are required")
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MaxAttempts <= 0 {
		return errors.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	// Textual check only; the migrator compares resolved container keys
	// as the backstop.
	if c.Source == c.Destination {
		return errors.New("source and destination refer to the same container")
	}
	return nil
}
