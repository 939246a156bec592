package categorize

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RetryConfig bounds the retries of a Limited classifier.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Default limits for the fallback call.
const (
	DefaultRPS               = 2
	DefaultTimeout           = 10 * time.Second
	DefaultMaxRetries        = 2
	DefaultInitialBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff        = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// DefaultRetryConfig returns the retry policy used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// CalculateBackoff returns the wait before retry number attempt (0-based),
// capped at MaxBackoff.
func (c RetryConfig) CalculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}
	backoff := time.Duration(float64(c.InitialBackoff) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}
	return backoff
}

// Limited decorates a Classifier with a rate limiter, a per-call timeout
// and bounded retries. Hybrid treats its final error as FallbackUnavailable.
type Limited struct {
	next    Classifier
	limiter *rate.Limiter
	timeout time.Duration
	retry   RetryConfig
}

// LimitedOption configures a Limited classifier.
type LimitedOption func(*Limited)

// WithRateLimit allows rps calls per second with a burst of the same size.
func WithRateLimit(rps int) LimitedOption {
	return func(l *Limited) {
		if rps > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// WithTimeout bounds every single attempt.
func WithTimeout(d time.Duration) LimitedOption {
	return func(l *Limited) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithRetry replaces the retry policy.
func WithRetry(cfg RetryConfig) LimitedOption {
	return func(l *Limited) {
		l.retry = cfg
	}
}

// NewLimited wraps next.
func NewLimited(next Classifier, opts ...LimitedOption) *Limited {
	l := &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(DefaultRPS), DefaultRPS),
		timeout: DefaultTimeout,
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Classify implements Classifier.
func (l *Limited) Classify(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= l.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), "classifier retry cancelled")
			case <-time.After(l.retry.CalculateBackoff(attempt - 1)):
			}
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, "classifier rate limit")
		}

		label, err := l.once(ctx, req)
		if err == nil {
			return label, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (l *Limited) once(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.next.Classify(callCtx, req)
}

// retryable treats rate limits, timeouts and server errors as transient.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "rate limit", "resource_exhausted", "quota", "timeout", "500", "502", "503", "504", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
