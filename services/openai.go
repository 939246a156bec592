package services

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// NewOpenAIClient builds a client from OPENAI_API_KEY, honoring
// OPENAI_BASE_URL for compatible gateways.
func NewOpenAIClient() (*openai.Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	return openai.NewClientWithConfig(config), nil
}
