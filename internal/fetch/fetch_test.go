package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/JakeFAU/market-harvester/internal/harvest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   Outcome
	}{
		{name: "ok", err: nil, statusCode: http.StatusOK, expected: OutcomeSuccess},
		{name: "no content", err: nil, statusCode: http.StatusNoContent, expected: OutcomeSuccess},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: OutcomeForbidden},
		{name: "forbidden with error", err: errors.New("Forbidden"), statusCode: http.StatusForbidden, expected: OutcomeForbidden},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: OutcomeRateLimited},
		{name: "rate limited with error", err: errors.New("Too Many Requests"), statusCode: http.StatusTooManyRequests, expected: OutcomeRateLimited},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: OutcomeTransport},
		{name: "server error", err: nil, statusCode: http.StatusInternalServerError, expected: OutcomeTransport},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: OutcomeTimeout},
		{name: "wrapped context timeout", err: errors.Join(errors.New("colly fetch canceled"), context.DeadlineExceeded), statusCode: 0, expected: OutcomeTimeout},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: OutcomeTimeout},
		{name: "connection refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: OutcomeTransport},
		{name: "other error", err: errors.New("some other error"), statusCode: 0, expected: OutcomeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Response{StatusCode: tt.statusCode}, tt.err)
			if got != tt.expected {
				t.Fatalf("Classify(status=%d, err=%v) = %q, want %q", tt.statusCode, tt.err, got, tt.expected)
			}
		})
	}
}

func TestOutcomeKind(t *testing.T) {
	tests := []struct {
		outcome Outcome
		kind    harvest.FailureKind
	}{
		{OutcomeBlocked, harvest.KindBlocked},
		{OutcomeRateLimited, harvest.KindRateLimited},
		{OutcomeForbidden, harvest.KindForbidden},
		{OutcomeTimeout, harvest.KindTimeout},
		{OutcomeTransport, harvest.KindTransport},
	}
	for _, tt := range tests {
		if got := tt.outcome.Kind(); got != tt.kind {
			t.Fatalf("%s.Kind() = %q, want %q", tt.outcome, got, tt.kind)
		}
	}
}

func TestMatchBlockPhrase(t *testing.T) {
	phrases := []string{"captcha", "unusual traffic"}

	t.Run("matches case insensitively", func(t *testing.T) {
		body := []byte("<html><body>Please solve this CAPTCHA to continue</body></html>")
		phrase, blocked := MatchBlockPhrase(body, phrases)
		if !blocked || phrase != "captcha" {
			t.Fatalf("MatchBlockPhrase() = (%q, %v), want (captcha, true)", phrase, blocked)
		}
	})

	t.Run("matches later phrases", func(t *testing.T) {
		body := []byte("We detected Unusual Traffic from your network")
		phrase, blocked := MatchBlockPhrase(body, phrases)
		if !blocked || phrase != "unusual traffic" {
			t.Fatalf("MatchBlockPhrase() = (%q, %v), want (unusual traffic, true)", phrase, blocked)
		}
	})

	t.Run("clean payload passes", func(t *testing.T) {
		body := []byte("<html><body><div class=\"product\">USB cable $9.99</div></body></html>")
		if _, blocked := MatchBlockPhrase(body, phrases); blocked {
			t.Fatal("expected clean payload to pass")
		}
	})

	t.Run("empty inputs pass", func(t *testing.T) {
		if _, blocked := MatchBlockPhrase(nil, phrases); blocked {
			t.Fatal("expected empty body to pass")
		}
		if _, blocked := MatchBlockPhrase([]byte("captcha"), nil); blocked {
			t.Fatal("expected empty phrase list to pass")
		}
		if _, blocked := MatchBlockPhrase([]byte("captcha"), []string{""}); blocked {
			t.Fatal("expected blank phrase to be skipped")
		}
	})
}

func TestChallengeDetectorMatch(t *testing.T) {
	listing := []byte(`<html><body><div class="product">USB cable $9.99</div></body></html>`)

	t.Run("small body trips the size floor", func(t *testing.T) {
		d := NewChallengeDetector(1024, nil)
		reason, hit := d.Match(listing)
		if !hit {
			t.Fatal("expected undersized body to match")
		}
		if reason == "" {
			t.Fatal("expected a reason")
		}
	})

	t.Run("size floor disabled by zero", func(t *testing.T) {
		d := NewChallengeDetector(0, nil)
		if _, hit := d.Match(listing); hit {
			t.Fatal("expected clean markup to pass with the floor off")
		}
	})

	t.Run("challenge selector matches", func(t *testing.T) {
		body := []byte(`<html><body><form action="/errors/validateCaptcha" method="get"><input id="captchacharacters"/></form></body></html>`)
		d := NewChallengeDetector(0, nil)
		reason, hit := d.Match(body)
		if !hit {
			t.Fatal("expected captcha form to match")
		}
		if reason == "" {
			t.Fatal("expected the selector in the reason")
		}
	})

	t.Run("custom selectors override the catalog", func(t *testing.T) {
		body := []byte(`<html><body><div id="px-captcha"></div></body></html>`)
		d := NewChallengeDetector(0, []string{"div.block-wall"})
		if _, hit := d.Match(body); hit {
			t.Fatal("expected the builtin selector to be replaced")
		}
	})

	t.Run("nil detector never matches", func(t *testing.T) {
		var d *ChallengeDetector
		if _, hit := d.Match([]byte("<html></html>")); hit {
			t.Fatal("expected nil detector to pass everything")
		}
	})
}
