package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit limits request rate with a token bucket. If rps <= 0 the
// limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) Generate(ctx context.Context, prompt string) (Result, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return Result{}, err
	}
	return c.next.Generate(ctx, prompt)
}

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent errors and context cancellation stop immediately.
// This is the only place retry policy lives; the pipeline never retries.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, prompt string) (Result, error) {
	var last error
	for i := 0; i < r.max; i++ {
		res, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return Result{}, err
		}
		last = err
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		time.Sleep(r.base * time.Duration(1<<i))
	}
	return Result{}, last
}

// Logging emits one structured event per invocation.
func Logging(logger *zap.Logger) Middleware {
	return func(next Client) Client {
		return &logged{next: next, logger: logger}
	}
}

type logged struct {
	next   Client
	logger *zap.Logger
}

func (c *logged) Name() string { return c.next.Name() }
func (c *logged) Close() error { return c.next.Close() }

func (c *logged) Generate(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()
	res, err := c.next.Generate(ctx, prompt)
	fields := []zap.Field{
		zap.String("model", c.next.Name()),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		c.logger.Warn("llm_request_failed", append(fields, zap.Error(err))...)
		return res, err
	}
	c.logger.Debug("llm_request", append(fields, zap.Int("tokens_total", res.TokenUsage.TotalTokens))...)
	return res, nil
}
