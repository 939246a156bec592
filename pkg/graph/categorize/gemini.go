package categorize

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// GeminiClassifier asks a Gemini model for a category, constraining the
// answer with a response schema whose enum is the closed taxonomy.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier returns a classifier using model on client.
func NewGeminiClassifier(client *genai.Client, model string) *GeminiClassifier {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiClassifier{client: client, model: model}
}

// Classify implements Classifier.
func (c *GeminiClassifier) Classify(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(0)),
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(req.Categories),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}, config)
	if err != nil {
		return "", errors.Wrapf(err, "generate content with %s", c.model)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.Errorf("generate content with %s returned no text", c.model)
	}
	return ParseLabel(text), nil
}

func responseSchema(categories []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": {
				Type:        genai.TypeString,
				Enum:        categories,
				Description: "Exactly one of the listed category names.",
			},
		},
		Required: []string{"category"},
	}
}
