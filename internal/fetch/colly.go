package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyConfig controls collector behavior.
type CollyConfig struct {
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
}

// CollyClient implements Client using the Colly collector. Markets are
// refetched across rounds and retries, so revisits are always allowed, and
// error statuses parse as ordinary responses so the pipeline can classify
// them by status code.
type CollyClient struct {
	cfg       CollyConfig
	transport http.RoundTripper
	base      *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewCollyClient builds a CollyClient.
func NewCollyClient(cfg CollyConfig) *CollyClient {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	transport := wrapTransport(newHTTPTransport(), cfg.CloudflareBypass)
	c.WithTransport(transport)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	// The HTTP backend is shared by every clone, so the timeout is fixed
	// here once; per-fetch deadlines ride on the context instead.
	c.SetRequestTimeout(timeout)

	return &CollyClient{
		cfg:       cfg,
		transport: transport,
		base:      c,
	}
}

// WithTransport replaces the underlying transport. Tests use it to install
// mock transports.
func (c *CollyClient) WithTransport(rt http.RoundTripper) {
	c.transport = rt
	c.base.WithTransport(rt)
}

// Get executes a single HTTP GET using Colly.
func (c *CollyClient) Get(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := c.buildCollector(req, start, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		// The abandoned visit may still be writing its captured result,
		// so only the context error leaves here.
		return Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			// Hand back whatever was captured so the caller can still
			// classify by status code when one arrived.
			return result, fmt.Errorf("colly visit failed: %w", err)
		}
	}
	if fetchErr != nil {
		return result, fmt.Errorf("colly response failed: %w", fetchErr)
	}
	return result, nil
}

func (c *CollyClient) buildCollector(req Request, start time.Time, result *Response, fetchErr *error) *colly.Collector {
	collector := c.base.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	c.configureCollectorHooks(collector, req, start, result, fetchErr)
	return collector
}

func (c *CollyClient) configureCollectorHooks(
	hooks collectorHooks,
	req Request,
	start time.Time,
	result *Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		c.applyHeaders(req, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.Body = append([]byte(nil), r.Body...)
			result.Duration = time.Since(start)
			if r.Headers != nil {
				result.Headers = r.Headers.Clone()
			}
			if r.Request != nil && r.Request.URL != nil {
				result.URL = r.Request.URL.String()
			}
		}
		*fetchErr = err
	})
}

// applyHeaders installs the identity's header set. Set rather than Add so
// the profile fully replaces colly's defaults.
func (c *CollyClient) applyHeaders(req Request, r *colly.Request) {
	if req.Headers == nil {
		return
	}
	for key, values := range req.Headers {
		for i, v := range values {
			if i == 0 {
				r.Headers.Set(key, v)
				continue
			}
			r.Headers.Add(key, v)
		}
	}
}
