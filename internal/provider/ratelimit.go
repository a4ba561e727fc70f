package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimited wraps a Client and throttles every remote call with a shared
// token bucket. Embedding a corpus issues many back-to-back requests; the
// limiter keeps the client inside the provider's requests-per-second quota.
type rateLimited struct {
	inner   Client
	limiter *rate.Limiter
}

// WithRateLimit wraps client so that at most rps requests per second are
// issued, with a burst of one. rps <= 0 returns the client unchanged.
func WithRateLimit(client Client, rps float64) Client {
	if rps <= 0 {
		return client
	}
	return &rateLimited{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *rateLimited) Name() string { return c.inner.Name() }

func (c *rateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Embed(ctx, texts)
}

func (c *rateLimited) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Generate(ctx, req)
}

func (c *rateLimited) Moderate(ctx context.Context, text string) (Moderation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Moderation{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Moderate(ctx, text)
}
