package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
)

// callWithRetry issues the request with exponential backoff on
// transient failures. Non-retryable errors (bad request, auth) return
// immediately; exhausting the retry budget returns ErrUnavailable.
func (c *Client) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second

	var resp *anthropic.Message
	op := func() error {
		var err error
		resp, err = c.inner.Messages.New(ctx, params)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if isRetryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

// isRetryable classifies transient backend failures: overload, rate
// limits, server errors, and network hiccups.
func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"overloaded",
		"rate limit",
		"429",
		"500",
		"502",
		"503",
		"529",
		"connection refused",
		"connection reset",
		"timeout",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
