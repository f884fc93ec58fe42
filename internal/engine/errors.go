package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying order failures. Callers branch on these
// with errors.Is rather than string matching.
var (
	// ErrHalted means the circuit breaker refused the order.
	ErrHalted = errors.New("trading halted")

	// ErrRiskRejected means the risk manager refused the order.
	ErrRiskRejected = errors.New("risk check failed")

	// ErrValidation means the order parameters are malformed.
	ErrValidation = errors.New("invalid order")

	// ErrWouldCross means a post-only order would have taken liquidity.
	ErrWouldCross = errors.New("post-only order would cross")

	// ErrNoPosition means ClosePosition found nothing to close.
	ErrNoPosition = errors.New("no open position")
)

// haltedError carries the breaker's denial reason.
type haltedError struct{ reason string }

func (e *haltedError) Error() string { return fmt.Sprintf("trading halted: %s", e.reason) }
func (e *haltedError) Unwrap() error { return ErrHalted }

// validationError wraps ErrValidation with detail.
type validationError struct{ detail string }

func (e *validationError) Error() string { return fmt.Sprintf("invalid order: %s", e.detail) }
func (e *validationError) Unwrap() error { return ErrValidation }
