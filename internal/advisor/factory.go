package advisor

import (
	"fmt"

	"pact-verifier/internal/config"
)

// NewClient creates a new advisor client based on the provider
func NewClient(cfg config.AdvisorConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported advisor provider: %s", cfg.Provider)
	}
}
