package ai

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	FailureCredentialExhausted = "credential_exhausted"
	FailureRateLimited         = "rate_limited"
	FailureAuthorization       = "authorization_failed"
	FailureMalformedResponse   = "malformed_response"
	FailureTimeout             = "timeout"
	FailureUpstream            = "upstream_error"
)

var ErrAllExhausted = errors.New("all providers exhausted")

type ProviderError struct {
	Provider string
	Kind     string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func ErrorFromStatus(provider string, status int, body []byte) *ProviderError {
	kind := FailureUpstream
	switch status {
	case http.StatusTooManyRequests:
		kind = FailureRateLimited
	case http.StatusForbidden:
		kind = FailureAuthorization
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   status,
		Err:      fmt.Errorf("upstream status %d: %s", status, truncateBody(body)),
	}
}

func FailureKindOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureUpstream
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
