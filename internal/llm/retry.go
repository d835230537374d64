package llm

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig retries twice with exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

// generateWithRetry calls the model, retrying only errors classified as
// transient. The caller's deadline still bounds the whole attempt sequence.
func (c *Client) generateWithRetry(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		resp, err := c.model.GenerateContent(ctx, messages, options...)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt >= c.retry.MaxRetries || !isRetryable(err) {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("llm call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cancelled during retry delay: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	return nil, lastErr
}

// isRetryable classifies transient transport and provider errors. Unknown
// errors are not retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "network is unreachable"),
		strings.Contains(errStr, "temporary failure"):
		return true
	case strings.Contains(errStr, "500"),
		strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "504"),
		strings.Contains(errStr, "429"):
		return true
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "overloaded"),
		strings.Contains(errStr, "service unavailable"):
		return true
	}

	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	if urlErr, ok := err.(*url.Error); ok {
		return isRetryable(urlErr.Err)
	}
	return false
}
