package fetch

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
)

func TestRestyClientGetJSON(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://shop.example.test/search/suggest.json",
		httpmock.NewStringResponder(200, `{"resources":{"results":{"products":[]}}}`).
			HeaderSet(http.Header{"Content-Type": {"application/json"}}))

	client, err := NewRestyClient(RestyConfig{})
	if err != nil {
		t.Fatalf("NewRestyClient() error = %v", err)
	}
	client.Resty().SetTransport(transport)

	resp, err := client.Get(context.Background(), Request{
		URL:     "https://shop.example.test/search/suggest.json",
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Headers.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected headers %+v", resp.Headers)
	}
}

func TestRestyClientGetSurfacesErrorStatuses(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://shop.example.test/search/suggest.json",
		httpmock.NewStringResponder(http.StatusTooManyRequests, "slow down"))

	client, err := NewRestyClient(RestyConfig{})
	if err != nil {
		t.Fatalf("NewRestyClient() error = %v", err)
	}
	client.Resty().SetTransport(transport)

	resp, err := client.Get(context.Background(), Request{URL: "https://shop.example.test/search/suggest.json"})
	if err != nil {
		t.Fatalf("error statuses should not error: %v", err)
	}
	if Classify(resp, err) != OutcomeRateLimited {
		t.Fatalf("expected rate limited classification, got status %d", resp.StatusCode)
	}
}

func TestRestyClientGetTransportError(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	// No responder registered: the transport refuses the request.

	client, err := NewRestyClient(RestyConfig{})
	if err != nil {
		t.Fatalf("NewRestyClient() error = %v", err)
	}
	client.Resty().SetTransport(transport)

	_, err = client.Get(context.Background(), Request{URL: "https://unregistered.example.test/"})
	if err == nil {
		t.Fatal("expected transport error")
	}
}
