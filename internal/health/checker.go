// Package health polls an HTTP health endpoint until it reports ready.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"stackvisor/internal/config"
)

// ErrNotHealthy is returned when the retry budget is exhausted without a
// ready response.
var ErrNotHealthy = errors.New("health check retries exhausted")

// The endpoint is considered ready when the response body contains this
// token, matching what the backend's /health handler emits.
const readyToken = "healthy"

type Checker struct {
	policy config.Backoff
	client *http.Client
	logger *zap.Logger
}

func NewChecker(policy config.Backoff, logger *zap.Logger) *Checker {
	return &Checker{
		policy: policy,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Probe performs a single health poll against {baseURL}/health. Connection
// errors, non-2xx statuses and bodies missing the ready token all count as
// not ready.
func (c *Checker) Probe(ctx context.Context, baseURL string) bool {
	url := strings.TrimRight(baseURL, "/") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}

	return strings.Contains(string(body), readyToken)
}

// Wait polls until the endpoint is ready, the context is cancelled, or
// MaxAttempts polls have failed. Between attempts it sleeps Interval plus a
// random jitter slice.
func (c *Checker) Wait(ctx context.Context, baseURL string) error {
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if c.Probe(ctx, baseURL) {
			c.logger.Info("api is healthy", zap.Int("attempt", attempt))
			return nil
		}

		c.logger.Debug("api not ready yet",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts))

		if attempt == c.policy.MaxAttempts {
			break
		}

		if err := sleep(ctx, c.policy.Interval+jitter(c.policy.Jitter)); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrNotHealthy, c.policy.MaxAttempts)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
