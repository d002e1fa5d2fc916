package config

import (
	"fmt"
	"time"
)

// AdvisorConfig holds configuration for the remediation advisor
type AdvisorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // e.g., "openai"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`    // e.g., "gpt-4o-mini"
	BaseURL  string `yaml:"base_url"` // Optional, for custom endpoints

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// MaxSuggestions caps how many failing interactions are sent per run.
	MaxSuggestions int           `yaml:"max_suggestions"`
	Timeout        time.Duration `yaml:"timeout"`
}

func (c *AdvisorConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 400
	}
	if c.MaxSuggestions == 0 {
		c.MaxSuggestions = 10
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the required fields of an enabled advisor
func (c *AdvisorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Provider == "" {
		return fmt.Errorf("advisor provider is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("advisor API key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("advisor model is required")
	}
	return nil
}
