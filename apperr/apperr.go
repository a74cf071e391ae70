// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

// Package apperr defines the typed errors that cross component boundaries.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies an Error and determines its HTTP status.
type Kind int

const (
	// KindInternal unexpected or unclassified failure.
	KindInternal Kind = iota
	// KindInvalidInput missing, empty or out of bounds input.
	KindInvalidInput
	// KindNotFound nothing matched the request.
	KindNotFound
	// KindRateLimited the caller or an upstream is throttling.
	KindRateLimited
	// KindRequestTimeout an outbound call exceeded its budget.
	KindRequestTimeout
	// KindServiceUnavailable an upstream could not be reached.
	KindServiceUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindInvalidInput:       "invalid_input",
	KindNotFound:           "not_found",
	KindRateLimited:        "rate_limited",
	KindRequestTimeout:     "request_timeout",
	KindServiceUnavailable: "service_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Status returns the HTTP status code associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindRequestTimeout:
		return http.StatusRequestTimeout
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a failure with a stable kind and a user facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an Error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that keeps err as its cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code of the error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// As returns the *Error inside err, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}

	return nil, false
}

// KindOf returns the kind of err. Untyped errors are internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}

	return KindInternal
}

// IsTimeout reports whether err was caused by an exceeded deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNetworkFailure reports whether err comes from DNS resolution or from
// failing to reach the remote host.
func IsNetworkFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Classify maps a transport error to a kind. Timeouts win over network failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case IsTimeout(err):
		return KindRequestTimeout
	case IsNetworkFailure(err):
		return KindServiceUnavailable
	default:
		return KindOf(err)
	}
}
