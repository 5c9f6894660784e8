// Package dErrors provides coded errors for the integrity core. Services
// return these so transports and callers can branch on the Code without
// string matching, and so retryability is explicit: validation codes are
// deterministic and must never be blindly retried, while CodeUnavailable
// and CodeTxFailed mark transient ledger conditions a caller may retry
// after confirming on-chain state.
package dErrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// Validation failures: deterministic, caller must change the request.
	CodeInvalidInput     Code = "invalid_input"
	CodeBadRequest       Code = "bad_request"
	CodeNotFound         Code = "not_found"
	CodeAlreadyExists    Code = "already_exists"
	CodeNotAuthorized    Code = "not_authorized"
	CodeInvalidSignature Code = "invalid_signature"
	CodeAlreadyRevoked   Code = "already_revoked"
	CodeAlreadyDeleted   Code = "already_deleted"

	// Transaction failures: non-deterministic, retryable by an explicit,
	// idempotency-aware caller action.
	CodeUnavailable Code = "unavailable"
	CodeTxFailed    Code = "tx_failed"

	// SplitBrain marks a ledger write that succeeded while the local
	// bookkeeping write failed. The ledger is authoritative; recovery is a
	// backfill, never a re-anchor.
	CodeSplitBrain Code = "split_brain"

	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of err, or CodeInternal when err is uncoded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether the failure is transient. Validation codes are
// deliberately excluded.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeTxFailed:
		return true
	}
	return false
}
