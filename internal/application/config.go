package application

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-cohort/internal/domain"
)

// EngineConfig defines the engine-wide configuration and serves as the
// primary configuration entry point for the system. Values here apply
// wherever an application or event does not carry its own settings.
type EngineConfig struct {
	// Version specifies the configuration schema version using semantic
	// versioning to ensure compatibility across system updates.
	Version string `yaml:"version" validate:"required,semver"`

	// Defaults holds the evaluation settings used for applications whose
	// cutoff configuration carries none.
	Defaults domain.EvaluationSettings `yaml:"defaults"`

	// DemoDay configures demo-day judging defaults.
	DemoDay DemoDayConfig `yaml:"demo_day"`

	// Scoreboard tunes scoreboard computation.
	Scoreboard ScoreboardConfig `yaml:"scoreboard"`

	// Store configures transaction behavior.
	Store StoreConfig `yaml:"store"`
}

// DemoDayConfig holds the raw score range judges enter per criterion when
// an event does not configure its own.
type DemoDayConfig struct {
	// MaxRawScore is the highest raw value per criterion.
	MaxRawScore float64 `yaml:"max_raw_score" validate:"gt=0,gtfield=MinRawScore"`

	// MinRawScore is the lowest raw value per criterion.
	MinRawScore float64 `yaml:"min_raw_score" validate:"min=0"`
}

// ScoreboardConfig bounds the parallelism used when computing aggregates
// for a whole step.
type ScoreboardConfig struct {
	// Concurrency is the number of aggregates computed at once.
	Concurrency int `yaml:"concurrency" validate:"min=1,max=64"`
}

// StoreConfig controls how the engine runs store transactions.
type StoreConfig struct {
	// MaxRetries is how many times a transaction aborted by a concurrent
	// writer is rerun before the error is surfaced.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// TxTimeoutSeconds bounds each transaction. Zero disables the bound.
	TxTimeoutSeconds int `yaml:"tx_timeout_seconds" validate:"min=0,max=300"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		Version:    "1.0.0",
		Defaults:   domain.DefaultEvaluationSettings(),
		DemoDay:    DemoDayConfig{MaxRawScore: 10, MinRawScore: 1},
		Scoreboard: ScoreboardConfig{Concurrency: 8},
		Store:      StoreConfig{MaxRetries: 3, TxTimeoutSeconds: 10},
	}
}

// LoadConfig reads and validates an engine configuration file. Fields the
// file omits keep their DefaultConfig values.
// LoadConfig returns an error if reading, parsing, or validation fails.
func LoadConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return EngineConfig{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig decodes and validates an engine configuration from r.
// Decoding is strict so that a misspelled key is reported rather than
// silently ignored.
func ParseConfig(r io.Reader) (EngineConfig, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return EngineConfig{}, fmt.Errorf("YAML decode failed: %w", err)
	}

	v, err := NewValidator()
	if err != nil {
		return EngineConfig{}, err
	}
	if err := v.Struct(cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, toValidationError("EngineConfig", err))
	}
	return cfg, nil
}
