package services

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultDeepseekBaseURL = "https://api.deepseek.com/v1"
	defaultOllamaBaseURL   = "http://localhost:11434/v1"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
)

// NewDeepseekClient builds a DeepSeek client from DEEPSEEK_API_KEY and
// DEEPSEEK_API_BASE.
func NewDeepseekClient() (*openai.Client, error) {
	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		return nil, errors.New("DEEPSEEK_API_KEY is not set")
	}

	baseURL := os.Getenv("DEEPSEEK_API_BASE")
	if baseURL == "" {
		baseURL = defaultDeepseekBaseURL
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return openai.NewClientWithConfig(config), nil
}

// NewOllamaClient talks to a local Ollama server; OLLAMA_BASE_URL overrides
// the default address.
func NewOllamaClient() *openai.Client {
	config := openai.DefaultConfig("not-needed")
	config.BaseURL = defaultOllamaBaseURL
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// NewOpenRouterClient builds a client from OPENROUTER_API_KEY.
func NewOpenRouterClient() (*openai.Client, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENROUTER_API_KEY is not set")
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = openRouterBaseURL
	config.OrgID = "openrouter"
	return openai.NewClientWithConfig(config), nil
}
