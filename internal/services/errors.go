// Package services implements the callable functions of the meal board:
// posts and comments, reports, photo shares, settings and readiness, meals,
// and photo uploads. Every mutating use-case runs the same gate sequence
// (identity, validation, moderation, rate limit) before touching the store.
//
// This file defines the error taxonomy shared by all use-cases. Expected
// failures are returned as *Error with a machine-readable Code and a
// message that is safe to show to users. Anything else is an internal
// error: the HTTP layer logs it in full and replies with a generic message.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/moderation"
	"github.com/tbourn/go-meal-backend/internal/ratelimit"
)

// Code is the machine-readable error code of a callable function.
type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeInvalidArgument   Code = "invalid-argument"
	CodePermissionDenied  Code = "permission-denied"
	CodeNotFound          Code = "not-found"
	CodeAlreadyExists     Code = "already-exists"
	CodeResourceExhausted Code = "resource-exhausted"
	CodeInternal          Code = "internal"
)

// InternalMessage replaces the message of every internal error.
const InternalMessage = "internal error"

// Error is an expected, user-facing failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Constructors per code.
func Unauthenticated(msg string) *Error  { return &Error{Code: CodeUnauthenticated, Message: msg} }
func InvalidArgument(msg string) *Error  { return &Error{Code: CodeInvalidArgument, Message: msg} }
func PermissionDenied(msg string) *Error { return &Error{Code: CodePermissionDenied, Message: msg} }
func NotFound(msg string) *Error         { return &Error{Code: CodeNotFound, Message: msg} }
func AlreadyExists(msg string) *Error    { return &Error{Code: CodeAlreadyExists, Message: msg} }

// Common errors.
var (
	ErrSignInRequired = Unauthenticated("sign-in required")
	ErrGuestDenied    = Unauthenticated("guest users cannot perform this action; please sign in")
	ErrNotOwner       = PermissionDenied("you can only modify your own content")
)

// Classify maps err to its code and user-facing message. Unknown errors are
// internal and get InternalMessage.
func Classify(err error) (Code, string) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, se.Message
	}
	var ex *ratelimit.ExceededError
	if errors.As(err, &ex) {
		return CodeResourceExhausted, ex.Error()
	}
	if errors.Is(err, moderation.ErrAlreadyReported) {
		return CodeAlreadyExists, moderation.ErrAlreadyReported.Error()
	}
	if errors.Is(err, domain.ErrInvalidGroupingKey) {
		return CodeInvalidArgument, err.Error()
	}
	return CodeInternal, InternalMessage
}

// CodeOf returns the code Classify assigns to err.
func CodeOf(err error) Code {
	c, _ := Classify(err)
	return c
}
