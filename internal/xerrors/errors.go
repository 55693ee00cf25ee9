// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package xerrors defines the error taxonomy shared by the authentication,
// HTTP, and realtime layers.
//
// Callers classify failures with Is / KindOf rather than string matching:
//
//	if xerrors.KindOf(err) == xerrors.KindExpired { ... }
package xerrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for handling decisions.
type Kind int

const (
	// KindUnknown is the zero value for errors outside the taxonomy.
	KindUnknown Kind = iota
	// KindNetwork covers transport-level failures (dial, TLS, timeout).
	KindNetwork
	// KindHTTP4xx covers client-error HTTP statuses.
	KindHTTP4xx
	// KindHTTP5xx covers server-error HTTP statuses.
	KindHTTP5xx
	// KindDecode covers missing or malformed fields in a response body.
	KindDecode
	// KindCrypto covers key generation, serialization, and signing failures.
	KindCrypto
	// KindPersistence covers I/O failures on the state file.
	KindPersistence
	// KindExpired marks a token past its NotAfter.
	KindExpired
	// KindCancelled marks a context cancellation.
	KindCancelled
	// KindUnavailable marks an operation attempted without an identity.
	KindUnavailable
)

// String implements fmt.Stringer for log fields.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP4xx:
		return "http_4xx"
	case KindHTTP5xx:
		return "http_5xx"
	case KindDecode:
		return "decode"
	case KindCrypto:
		return "crypto"
	case KindPersistence:
		return "persistence"
	case KindExpired:
		return "expired"
	case KindCancelled:
		return "cancelled"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error carries a kind, the failed operation, and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates an Error with a formatted message as its cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap creates an Error wrapping err. Returns nil when err is nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf walks the error chain and returns the first classified kind.
// Context cancellation is recognized even when unwrapped from stdlib errors.
func KindOf(err error) Kind {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}
