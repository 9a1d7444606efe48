// Package markettest provides shared fakes for market adapter tests.
package markettest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/JakeFAU/market-harvester/internal/fetch"
	"github.com/JakeFAU/market-harvester/internal/identity"
	"github.com/JakeFAU/market-harvester/internal/metrics"
	"github.com/JakeFAU/market-harvester/internal/policy/ratelimit"
)

// Client implements fetch.Client with canned bodies keyed by URL and an
// optional fallback for unmatched requests.
type Client struct {
	mu       sync.Mutex
	bodies   map[string]string
	fallback string
	err      error
	status   int
	calls    []string
}

// NewClient returns a Client answering every request with status 200 and an
// empty body until configured otherwise.
func NewClient() *Client {
	return &Client{bodies: make(map[string]string), status: http.StatusOK}
}

// Respond registers a body for one exact URL.
func (c *Client) Respond(url, body string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies[url] = body
	return c
}

// RespondAll sets the fallback body served to unmatched URLs.
func (c *Client) RespondAll(body string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = body
	return c
}

// Fail makes every request return err.
func (c *Client) Fail(err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

// Status overrides the response status code.
func (c *Client) Status(code int) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = code
	return c
}

// Get serves the scripted response and records the requested URL.
func (c *Client) Get(_ context.Context, req fetch.Request) (fetch.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req.URL)
	if c.err != nil {
		return fetch.Response{URL: req.URL}, c.err
	}
	body, ok := c.bodies[req.URL]
	if !ok {
		body = c.fallback
	}
	return fetch.Response{
		URL:        req.URL,
		StatusCode: c.status,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
		Duration:   time.Millisecond,
	}, nil
}

// Calls returns every requested URL in order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// NewPipeline wires a fetch pipeline for adapter tests: builtin identities,
// no rate limiting, a single attempt per fetch.
func NewPipeline(t testing.TB, client fetch.Client) *fetch.Pipeline {
	t.Helper()
	metrics.Init()
	pipe, err := fetch.NewPipeline(fetch.Deps{
		Client:     client,
		Identities: identity.NewCatalog(identity.Options{}),
		Limiter:    ratelimit.New(ratelimit.Config{}),
	}, fetch.Options{MaxRetries: 1, BackoffBase: time.Millisecond})
	if err != nil {
		t.Fatalf("build fetch pipeline: %v", err)
	}
	return pipe
}
