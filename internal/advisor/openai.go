package advisor

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"pact-verifier/internal/config"
	"pact-verifier/internal/types"
)

const systemPrompt = "You are an API contract reviewer. You explain why a consumer contract does not match a provider's OpenAPI document and how to fix it. Answer in plain text."

// OpenAIClient implements Client using OpenAI's chat completions API
type OpenAIClient struct {
	config config.AdvisorConfig
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.AdvisorConfig) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Suggest implements Client
func (c *OpenAIClient) Suggest(ctx context.Context, interaction *types.Interaction, violations []types.Violation) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       c.config.Model,
			Temperature: float32(c.config.Temperature),
			MaxTokens:   c.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: BuildPrompt(interaction, violations),
				},
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}
