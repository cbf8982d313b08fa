// Package errors provides error handling for runwatch.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrExpiredToken) {
//	    // handle stale confirmation
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	GetAllDetails = crdb.GetAllDetails
	FlattenHints  = crdb.FlattenHints
)

// Sentinel errors shared across runwatch.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrExpiredToken indicates a correlation token that no longer maps to the
	// active detection cycle (process restarted, or a newer cycle superseded it).
	ErrExpiredToken = New("correlation token expired")

	// ErrRepairInFlight indicates a confirmation arrived while a repair for the
	// same token was already dispatched and not yet finished.
	ErrRepairInFlight = New("repair already in flight")

	// ErrTransient indicates a collaborator error worth retrying (network,
	// timeout, rate limit). The worker loop never terminates on these.
	ErrTransient = New("transient collaborator error")

	// ErrTimeout indicates a platform call exceeded its configured deadline.
	ErrTimeout = New("operation timed out")

	// ErrConfig indicates the process is half-configured and must not start.
	ErrConfig = New("invalid configuration")
)

// IsExpiredToken checks if an error is or wraps ErrExpiredToken.
func IsExpiredToken(err error) bool {
	return err != nil && Is(err, ErrExpiredToken)
}

// IsRepairInFlight checks if an error is or wraps ErrRepairInFlight.
func IsRepairInFlight(err error) bool {
	return err != nil && Is(err, ErrRepairInFlight)
}

// IsTransient checks if an error is or wraps ErrTransient or ErrTimeout.
func IsTransient(err error) bool {
	return err != nil && IsAny(err, ErrTransient, ErrTimeout)
}

// NewTransient wraps an error as transient with a formatted context message.
// The original cause stays in the chain, so Is/As against it keep working.
func NewTransient(err error, format string, args ...interface{}) error {
	return Mark(Wrapf(err, format, args...), ErrTransient)
}

// NewConfigError creates a configuration error with a formatted message.
func NewConfigError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfig)
}
