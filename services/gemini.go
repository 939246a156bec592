package services

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// NewGeminiClient builds a Gemini API client from GEMINI_API_KEY, falling
// back to GOOGLE_AI_API_KEY.
func NewGeminiClient(ctx context.Context) (*genai.Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_AI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	return client, nil
}
