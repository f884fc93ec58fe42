package hyperliquid

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCoin is returned when a coin is not in the perp universe.
	ErrUnknownCoin = errors.New("unknown coin")

	// ErrRejected is returned when the exchange rejects an action.
	ErrRejected = errors.New("order rejected")
)

// APIError is a non-200 response from the exchange.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hyperliquid api error: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if retried.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// RejectError carries the exchange's rejection text for one order status.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

func (e *RejectError) Unwrap() error { return ErrRejected }

// IsRetryable classifies transport and exchange errors for retry loops.
// Rejections are never retryable, they fail the same way every time.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, ErrRejected) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"temporary failure",
		"no such host",
		"eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
