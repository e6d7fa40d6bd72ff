package llm

import (
	"context"
	"fmt"
)

// FallbackClient attempts a primary client first and falls back on error.
type FallbackClient struct {
	primary  Client
	fallback Client
}

func NewFallbackClient(primary, fallback Client) *FallbackClient {
	return &FallbackClient{primary: primary, fallback: fallback}
}

func (c *FallbackClient) Name() string {
	if c.primary == nil {
		if c.fallback != nil {
			return c.fallback.Name()
		}
		return "none"
	}
	return c.primary.Name()
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.primary == nil {
		if c.fallback != nil {
			return c.fallback.Complete(ctx, req)
		}
		return "", fmt.Errorf("fallback client misconfigured")
	}
	reply, err := c.primary.Complete(ctx, req)
	if err == nil {
		return reply, nil
	}
	// A timeout inside the primary's own HTTP client still leaves time
	// for the fallback; only the caller's context ending stops here.
	if ctx.Err() != nil {
		return "", err
	}
	if c.fallback == nil {
		return "", err
	}
	reply, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		return "", fmt.Errorf("primary client error: %w; fallback client error: %v", err, fbErr)
	}
	return reply, nil
}
