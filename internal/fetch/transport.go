package fetch

import (
	"net"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
)

// newHTTPTransport builds the pooled transport shared by the HTTP clients.
func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// wrapTransport optionally layers the Cloudflare bypass onto a transport.
func wrapTransport(rt http.RoundTripper, cloudflareBypass bool) http.RoundTripper {
	if rt == nil {
		rt = newHTTPTransport()
	}
	if cloudflareBypass {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}
	return rt
}
