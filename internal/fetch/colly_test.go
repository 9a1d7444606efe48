package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"
)

func TestCollyClientGetSuccess(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.test/listing",
		httpmock.NewStringResponder(200, "<html>listing body</html>").HeaderSet(http.Header{"Content-Type": {"text/html"}}))

	client := NewCollyClient(CollyConfig{Timeout: 5 * time.Second})
	client.WithTransport(transport)

	resp, err := client.Get(context.Background(), Request{
		URL:     "https://example.test/listing",
		Headers: http.Header{"User-Agent": {"test-agent"}, "Accept-Language": {"en-US"}},
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if string(resp.Body) != "<html>listing body</html>" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if resp.Headers.Get("Content-Type") != "text/html" {
		t.Fatalf("expected content type header, got %+v", resp.Headers)
	}
}

func TestCollyClientGetErrorStatusParsesAsResponse(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.test/blocked",
		httpmock.NewStringResponder(http.StatusForbidden, "denied"))

	client := NewCollyClient(CollyConfig{})
	client.WithTransport(transport)

	resp, err := client.Get(context.Background(), Request{URL: "https://example.test/blocked"})
	if err != nil {
		t.Fatalf("expected error statuses to parse as responses, got %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if Classify(resp, err) != OutcomeForbidden {
		t.Fatalf("expected forbidden classification")
	}
}

func TestCollyClientGetRepeatsSameURL(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.test/again",
		httpmock.NewStringResponder(200, "ok"))

	client := NewCollyClient(CollyConfig{})
	client.WithTransport(transport)

	for i := 0; i < 3; i++ {
		if _, err := client.Get(context.Background(), Request{URL: "https://example.test/again"}); err != nil {
			t.Fatalf("repeat %d: %v", i, err)
		}
	}
	if calls := transport.GetCallCountInfo()["GET https://example.test/again"]; calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestCollyClientGetCanceledContext(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://example.test/slow",
		func(req *http.Request) (*http.Response, error) {
			time.Sleep(200 * time.Millisecond)
			return httpmock.NewStringResponse(200, "late"), nil
		})

	client := NewCollyClient(CollyConfig{})
	client.WithTransport(transport)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, Request{URL: "https://example.test/slow"})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	c := NewCollyClient(CollyConfig{})
	req := Request{
		URL:     "https://example.test",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	start := time.Unix(0, 0)
	var result Response
	var fetchErr error

	hooks := &stubHooks{}
	c.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.test"),
		},
	})
	if result.StatusCode != http.StatusCreated || string(result.Body) != "body" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Headers.Get("X-Resp") != "ok" {
		t.Fatalf("expected headers copied, got %+v", result.Headers)
	}

	hooks.onError(nil, errors.New("boom"))
	if fetchErr == nil || fetchErr.Error() != "boom" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestApplyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	c := NewCollyClient(CollyConfig{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	c.applyHeaders(Request{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func TestApplyHeadersReplacesDefaults(t *testing.T) {
	t.Parallel()

	c := NewCollyClient(CollyConfig{})
	headers := http.Header{}
	headers.Set("User-Agent", "existing")
	collyReq := &colly.Request{Headers: &headers}

	c.applyHeaders(Request{Headers: http.Header{"User-Agent": {"rotated"}}}, collyReq)
	if got := collyReq.Headers.Values("User-Agent"); len(got) != 1 || got[0] != "rotated" {
		t.Fatalf("expected user agent replaced, got %v", got)
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
