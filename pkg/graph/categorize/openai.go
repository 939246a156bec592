package categorize

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// ChatCompleter is the part of *openai.Client the classifier needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClassifier asks any OpenAI-compatible endpoint (OpenAI, DeepSeek,
// OpenRouter, Ollama) for a category.
type OpenAIClassifier struct {
	client   ChatCompleter
	model    string
	jsonMode bool
}

// NewOpenAIClassifier returns a classifier using model on client. JSON mode
// is requested unless the endpoint is known not to support it.
func NewOpenAIClassifier(client ChatCompleter, model string, jsonMode bool) *OpenAIClassifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClassifier{client: client, model: model, jsonMode: jsonMode}
}

// Classify implements Classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, req Request) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: 0,
	}
	if c.jsonMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", errors.Wrapf(err, "chat completion with %s", c.model)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Errorf("chat completion with %s returned no choices", c.model)
	}
	return ParseLabel(resp.Choices[0].Message.Content), nil
}

// ParseLabel pulls the category out of a model answer. JSON answers (possibly
// fenced) are read through their "category" field; anything else is taken
// as the bare label.
func ParseLabel(answer string) string {
	answer = strings.TrimSpace(answer)
	answer = strings.TrimPrefix(answer, "```json")
	answer = strings.TrimPrefix(answer, "```")
	answer = strings.TrimSuffix(answer, "```")
	answer = strings.TrimSpace(answer)

	if gjson.Valid(answer) {
		if v := gjson.Get(answer, "category"); v.Exists() {
			return strings.TrimSpace(v.String())
		}
		if r := gjson.Parse(answer); r.Type == gjson.String {
			return strings.TrimSpace(r.String())
		}
	}
	if i := strings.IndexByte(answer, '\n'); i >= 0 {
		answer = answer[:i]
	}
	return strings.Trim(strings.TrimSpace(answer), `"'.`)
}
