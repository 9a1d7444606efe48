// Package fetch implements the resilient page fetch pipeline: one logical
// fetch wraps bounded retries, per-market pacing, identity rotation on
// blocks, and progressive backoff around the underlying HTTP clients.
package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/market-harvester/internal/harvest"
)

// Request describes one physical HTTP GET.
type Request struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// Response captures the result of one physical HTTP GET.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client executes physical requests. Implementations exist for colly (HTML
// pages) and resty (JSON endpoints); tests substitute mock transports.
type Client interface {
	Get(ctx context.Context, req Request) (Response, error)
}

// Outcome is the terminal classification of a single fetch attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess     Outcome = "success"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeForbidden   Outcome = "forbidden"
	OutcomeTransport   Outcome = "transport_error"
	OutcomeTimeout     Outcome = "timeout"
)

// Classify maps a response/error pair onto an attempt outcome. Status codes
// take precedence over transport errors because the HTTP clients surface
// error statuses both ways.
func Classify(resp Response, err error) Outcome {
	switch resp.StatusCode {
	case http.StatusForbidden:
		return OutcomeForbidden
	case http.StatusTooManyRequests:
		return OutcomeRateLimited
	}
	if err != nil {
		if isTimeout(err) {
			return OutcomeTimeout
		}
		return OutcomeTransport
	}
	if resp.StatusCode >= 400 {
		return OutcomeTransport
	}
	return OutcomeSuccess
}

// Kind maps an outcome onto the failure taxonomy.
func (o Outcome) Kind() harvest.FailureKind {
	switch o {
	case OutcomeBlocked:
		return harvest.KindBlocked
	case OutcomeRateLimited:
		return harvest.KindRateLimited
	case OutcomeForbidden:
		return harvest.KindForbidden
	case OutcomeTimeout:
		return harvest.KindTimeout
	default:
		return harvest.KindTransport
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
