package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrSourceUnavailable is returned by a price source on any transport, decode,
// or schema error. Callers above the resolver never see anything lower level.
var ErrSourceUnavailable = errors.New("price source unavailable")

// Source is a single upstream price feed for a trading pair
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (*Quote, error)
}

// sourceClient bundles the HTTP plumbing shared by all source adapters:
// a bounded-timeout client, a per-provider rate limiter, and an optional
// circuit breaker guarding the upstream.
type sourceClient struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newSourceClient(timeout time.Duration, requestsPerMinute int, breaker *gobreaker.CircuitBreaker) sourceClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return sourceClient{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		breaker: breaker,
	}
}

// getJSON performs a rate-limited GET and decodes the JSON body into out
func (c *sourceClient) getJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// execute runs fetch through the circuit breaker when one is configured
func (c *sourceClient) execute(fetch func() (*Quote, error)) (*Quote, error) {
	if c.breaker == nil {
		return fetch()
	}
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return fetch()
	})
	if err != nil {
		return nil, err
	}
	return res.(*Quote), nil
}

// unavailable wraps an adapter-level failure into the source error taxonomy
func unavailable(source string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, source, err)
}
