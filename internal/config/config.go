package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pact-verifier/internal/schema"
)

// DefaultPath is where LoadConfig looks when no path is given.
const DefaultPath = "config/config.yaml"

// Config holds the application configuration
type Config struct {
	Verification VerificationConfig `yaml:"verification"`
	Reporting    ReportingConfig    `yaml:"reporting"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	History      HistoryConfig      `yaml:"history"`
	Advisor      AdvisorConfig      `yaml:"advisor"`
}

// VerificationConfig holds verification run configuration
type VerificationConfig struct {
	// AdditionalProperties is the policy for objects whose schema does not
	// say whether undeclared keys are allowed: permissive or strict.
	AdditionalProperties string `yaml:"additional_properties"`
	Concurrent           bool   `yaml:"concurrent"`
	MaxWorkers           int    `yaml:"max_workers"`
}

// Policy returns the parsed additional properties policy.
func (v VerificationConfig) Policy() (schema.Policy, error) {
	return schema.ParsePolicy(v.AdditionalProperties)
}

// ReportingConfig holds reporting configuration
type ReportingConfig struct {
	Format    []string `yaml:"format"`
	OutputDir string   `yaml:"output_dir"`
	Detailed  bool     `yaml:"detailed"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Dir enables an additional log file per run when set.
	Dir string `yaml:"dir"`
}

// MetricsConfig holds metrics export configuration
type MetricsConfig struct {
	// Textfile is written in the Prometheus text format after each run.
	Textfile string `yaml:"textfile"`
}

// HistoryConfig holds the run history database configuration
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LoadConfig loads the configuration file at path and applies environment
// overrides and defaults. A missing file at DefaultPath is not an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	var config Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnv overrides file settings from PACT_VERIFIER_* variables and the
// secret variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PACT_VERIFIER_ADDITIONAL_PROPERTIES"); v != "" {
		c.Verification.AdditionalProperties = v
	}
	if v := os.Getenv("PACT_VERIFIER_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PACT_VERIFIER_MAX_WORKERS: %w", err)
		}
		c.Verification.MaxWorkers = n
		c.Verification.Concurrent = n > 1
	}
	if v := os.Getenv("PACT_VERIFIER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PACT_VERIFIER_OUTPUT_DIR"); v != "" {
		c.Reporting.OutputDir = v
	}
	if v := os.Getenv("HISTORY_DSN_PASSWORD"); v != "" {
		c.History.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Advisor.APIKey = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Verification.AdditionalProperties == "" {
		c.Verification.AdditionalProperties = schema.PolicyPermissive.String()
	}
	if c.Verification.MaxWorkers == 0 {
		c.Verification.MaxWorkers = 5
	}
	if len(c.Reporting.Format) == 0 {
		c.Reporting.Format = []string{"json"}
	}
	if c.Reporting.OutputDir == "" {
		c.Reporting.OutputDir = filepath.Join("reports")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.History.Enabled && c.History.Port == 0 {
		c.History.Port = defaultPorts[c.History.Driver]
	}
	c.Advisor.applyDefaults()
}

var defaultPorts = map[string]int{
	"postgres":  5432,
	"mysql":     3306,
	"sqlserver": 1433,
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if _, err := c.Verification.Policy(); err != nil {
		return err
	}
	if c.Verification.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must not be negative")
	}
	for _, f := range c.Reporting.Format {
		if f != "json" && f != "text" {
			return fmt.Errorf("unsupported report format %q", f)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}
	if c.History.Enabled {
		if _, ok := defaultPorts[c.History.Driver]; !ok {
			return fmt.Errorf("unsupported history driver %q", c.History.Driver)
		}
		if c.History.Database == "" {
			return fmt.Errorf("history database is required")
		}
	}
	return c.Advisor.Validate()
}
