package fetch

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyConfig controls the JSON API client.
type RestyConfig struct {
	BaseURL          string
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
}

// RestyClient implements Client for JSON endpoints. It keeps a cookie jar so
// storefronts that hand out session cookies keep recognizing the client.
type RestyClient struct {
	http *resty.Client
}

// NewRestyClient builds a RestyClient.
func NewRestyClient(cfg RestyConfig) (*RestyClient, error) {
	client := resty.New()
	if cfg.BaseURL != "" {
		client.SetBaseURL(cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = wrapTransport(client.GetClient().Transport, cfg.CloudflareBypass)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &RestyClient{http: client}, nil
}

// Resty exposes the underlying client so tests can attach mock transports.
func (c *RestyClient) Resty() *resty.Client {
	return c.http
}

// Get executes a single HTTP GET.
func (c *RestyClient) Get(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r := c.http.R().SetContext(ctx)
	for key, values := range req.Headers {
		for _, v := range values {
			r.SetHeader(key, v)
		}
	}

	resp, err := r.Get(req.URL)
	if err != nil {
		return Response{URL: req.URL}, fmt.Errorf("resty get: %w", err)
	}
	return Response{
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header().Clone(),
		Body:       append([]byte(nil), resp.Body()...),
		Duration:   resp.Time(),
	}, nil
}
