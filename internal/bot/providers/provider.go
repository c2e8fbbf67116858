// Package providers maps provider identifiers to calling strategies for the
// AI completion services users bring keys for. The registry itself holds no
// state; each strategy is a thin HTTP client normalizing transport, auth and
// rate-limit failures into a single typed error.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Caller turns a prompt into a completion using the caller-supplied secret.
type Caller interface {
	// Name returns the provider identifier, e.g. "gemini".
	Name() string

	// Call sends the prompt and returns the completion text. The secret is
	// used for this single request only.
	Call(ctx context.Context, secret, prompt string) (string, error)

	// Validate performs a minimal authenticated request to check the secret
	// works, without generating a completion.
	Validate(ctx context.Context, secret string) error
}

// Error is a normalized provider failure. Retryable marks transient
// conditions (timeouts, rate limits, 5xx) worth exactly one retry.
type Error struct {
	Provider  string
	Status    int
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// retryableStatus reports whether an HTTP status is worth a retry.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// transportError wraps a network-level failure. Timeouts and temporary
// network errors are retryable; everything else is not.
func transportError(provider string, err error) *Error {
	retryable := false
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		retryable = true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		retryable = true
	}
	return &Error{Provider: provider, Message: err.Error(), Retryable: retryable}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
