package harvest

import (
	"errors"
	"fmt"
)

// FailureKind classifies a recoverable source failure.
type FailureKind string

// Failure kinds carried by SourceError.
const (
	KindTransport   FailureKind = "transport"
	KindBlocked     FailureKind = "blocked"
	KindRateLimited FailureKind = "rate_limited"
	KindForbidden   FailureKind = "forbidden"
	KindTimeout     FailureKind = "timeout"
	KindParse       FailureKind = "parse"
)

// ErrRunInProgress is returned by Run when the orchestrator is already
// driving a harvest. One Orchestrator serves one run at a time.
var ErrRunInProgress = errors.New("harvest run already in progress")

// ConfigError is fatal: it is raised before round 1 and surfaced to the
// caller. Every other failure is absorbed inside the run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// SourceError wraps a recoverable per-market failure. The orchestrator
// treats any SourceError as a zero-yield turn for that market.
type SourceError struct {
	Market string
	Kind   FailureKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Market, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Market, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError builds a SourceError, preserving an existing one's kind if
// err already carries a classification.
func NewSourceError(market string, kind FailureKind, err error) *SourceError {
	var src *SourceError
	if errors.As(err, &src) {
		return &SourceError{Market: market, Kind: src.Kind, Err: err}
	}
	return &SourceError{Market: market, Kind: kind, Err: err}
}

// IsBlocked reports whether the error is a block or forbidden classification,
// the two kinds that trigger identity rotation.
func IsBlocked(err error) bool {
	var src *SourceError
	if errors.As(err, &src) {
		return src.Kind == KindBlocked || src.Kind == KindForbidden
	}
	return false
}

// IsRateLimited reports whether the error carries a rate-limit classification.
func IsRateLimited(err error) bool {
	var src *SourceError
	if errors.As(err, &src) {
		return src.Kind == KindRateLimited
	}
	return false
}

// IsTimeout reports whether the error carries a timeout classification.
func IsTimeout(err error) bool {
	var src *SourceError
	if errors.As(err, &src) {
		return src.Kind == KindTimeout
	}
	return false
}

// KindLabel maps an error to a low-cardinality label for logs and metrics.
func KindLabel(err error) string {
	if err == nil {
		return "none"
	}
	var cfg *ConfigError
	if errors.As(err, &cfg) {
		return "config"
	}
	var src *SourceError
	if errors.As(err, &src) {
		return string(src.Kind)
	}
	return "other"
}
