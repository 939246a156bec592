package categorize

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyClassifier struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyClassifier) Classify(ctx context.Context, req Request) (string, error) {
	if f.calls.Add(1) <= f.failures {
		return "", f.err
	}
	return "Company", nil
}

type blockingClassifier struct{}

func (blockingClassifier) Classify(ctx context.Context, req Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:        max,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestLimitedRetriesTransientErrors(t *testing.T) {
	next := &flakyClassifier{failures: 2, err: errors.New("status 429: rate limit reached")}
	l := NewLimited(next, WithRateLimit(1000), WithRetry(fastRetry(3)))

	label, err := l.Classify(context.Background(), Request{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Company", label)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestLimitedStopsOnPermanentErrors(t *testing.T) {
	next := &flakyClassifier{failures: 10, err: errors.New("invalid api key")}
	l := NewLimited(next, WithRateLimit(1000), WithRetry(fastRetry(3)))

	_, err := l.Classify(context.Background(), Request{Name: "x"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestLimitedGivesUpAfterMaxRetries(t *testing.T) {
	next := &flakyClassifier{failures: 10, err: errors.New("503 service unavailable")}
	l := NewLimited(next, WithRateLimit(1000), WithRetry(fastRetry(2)))

	_, err := l.Classify(context.Background(), Request{Name: "x"})
	assert.Error(t, err)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestLimitedTimeout(t *testing.T) {
	l := NewLimited(blockingClassifier{}, WithTimeout(10*time.Millisecond), WithRetry(fastRetry(0)))

	_, err := l.Classify(context.Background(), Request{Name: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCalculateBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 3*time.Second, cfg.CalculateBackoff(5))
}

type stubChat struct {
	req     openai.ChatCompletionRequest
	content string
	err     error
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.req = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.content}},
		},
	}, nil
}

func TestOpenAIClassifier(t *testing.T) {
	chat := &stubChat{content: `{"category": "Geographic"}`}
	c := NewOpenAIClassifier(chat, "deepseek-chat", true)

	req := BuildRequest(NewEngine(nil).Catalog(), "EMEA", "")
	label, err := c.Classify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Geographic", label)

	assert.Equal(t, "deepseek-chat", chat.req.Model)
	require.Len(t, chat.req.Messages, 2)
	assert.Equal(t, req.Prompt, chat.req.Messages[1].Content)
	require.NotNil(t, chat.req.ResponseFormat)

	chat.err = errors.New("boom")
	_, err = c.Classify(context.Background(), req)
	assert.Error(t, err)
}
