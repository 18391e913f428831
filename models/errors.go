package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned by a broker call rejected for missing or expired authorization.
	ErrAuthRequired = errors.New("authorization required")
	// ErrAuthRetriesExhausted means a poll kept failing authorization past the per-contract bound.
	ErrAuthRetriesExhausted = errors.New("authorization retries exhausted")
	// ErrPositionOpen is returned when a placement is attempted while a contract is pending.
	ErrPositionOpen = errors.New("a contract is already pending")
	// ErrNoPendingContract is returned by an explicit reconcile with nothing in flight.
	ErrNoPendingContract = errors.New("no pending contract")
	// ErrNotConnected is returned by transport calls made before Connect or after Close.
	ErrNotConnected = errors.New("broker not connected")
)

// BrokerError wraps an order placement or poll failure reported by the broker.
type BrokerError struct {
	Op      string // "buy", "poll", "authorize", "ticks"
	Code    string
	Message string
	Err     error
}

// Error returns the error message.
func (e *BrokerError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("broker %s: %s: %s", e.Op, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("broker %s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
	default:
		return "broker " + e.Op + " failed"
	}
}

// Unwrap exposes the cause so errors.Is(err, ErrAuthRequired) works through the wrapper.
func (e *BrokerError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an authorization failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}
