// Package apperr defines the error taxonomy shared by the Gamefolio services,
// HTTP handlers and the client SDK.
//
// Services return *Error values for every failure a caller can act on. The
// Kind drives client behaviour, the Code is what travels over the wire and
// the Message is safe to show to a user. Cause is never serialised.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure independently of its transport.
type Kind string

const (
	KindDuplicateAccount    Kind = "DuplicateAccount"
	KindInvalidCredentials  Kind = "InvalidCredentials"
	KindEmailUnconfirmed    Kind = "EmailUnconfirmed"
	KindRateLimited         Kind = "RateLimited"
	KindTimeout             Kind = "Timeout"
	KindNotFound            Kind = "NotFound"
	KindValidation          Kind = "ValidationError"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindUnauthorized        Kind = "Unauthorized"
	KindForbidden           Kind = "Forbidden"
	KindConflict            Kind = "Conflict"
	KindInternal            Kind = "Internal"
)

// Error is the canonical error value for Gamefolio.
type Error struct {
	Kind       Kind         `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"error"`
	Status     int          `json:"-"`
	RetryAfter int          `json:"retryAfter,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
	Cause      error        `json:"-"`
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by Kind so callers can compare against the
// package-level sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// WithCause returns a copy of e carrying cause for server-side logging.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// Sentinels usable with errors.Is. Only Kind is compared.
var (
	ErrDuplicateAccount    = &Error{Kind: KindDuplicateAccount}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials}
	ErrEmailUnconfirmed    = &Error{Kind: KindEmailUnconfirmed}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInternal            = &Error{Kind: KindInternal}
)

// DuplicateAccount reports an email or handle that is already registered.
func DuplicateAccount(msg string) *Error {
	return &Error{Kind: KindDuplicateAccount, Code: "DUPLICATE_ACCOUNT", Message: msg, Status: http.StatusConflict}
}

// InvalidCredentials reports a failed sign-in. The message never says which
// half of the credentials was wrong.
func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", Status: http.StatusUnauthorized}
}

// EmailUnconfirmed reports a sign-in for an account that has not confirmed its email.
func EmailUnconfirmed() *Error {
	return &Error{Kind: KindEmailUnconfirmed, Code: "EMAIL_UNCONFIRMED", Message: "Please verify your email before signing in", Status: http.StatusForbidden}
}

// RateLimited reports an exceeded quota or an active cooldown.
func RateLimited(retryAfterSeconds int) *Error {
	msg := "Too many attempts. Please try again later."
	if retryAfterSeconds > 0 {
		msg = fmt.Sprintf("Too many attempts. Try again in %ds.", retryAfterSeconds)
	}
	return &Error{Kind: KindRateLimited, Code: "RATE_LIMITED", Message: msg, Status: http.StatusTooManyRequests, RetryAfter: retryAfterSeconds}
}

// Timeout reports a request that did not complete in time.
func Timeout(action string) *Error {
	return &Error{Kind: KindTimeout, Code: "TIMEOUT", Message: action + " timed out. Please try again.", Status: http.StatusGatewayTimeout}
}

// NotFound reports a missing resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: resource + " not found", Status: http.StatusNotFound}
}

// Validation reports invalid input with optional per-field details.
func Validation(msg string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg, Status: http.StatusBadRequest, Details: details}
}

// UpstreamUnavailable reports a failing third-party dependency.
func UpstreamUnavailable(service string) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Code: "UPSTREAM_UNAVAILABLE", Message: service + " is currently unavailable", Status: http.StatusBadGateway}
}

// Unauthorized reports a missing or invalid bearer credential, or a caller
// without the role an action requires.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: msg, Status: http.StatusUnauthorized}
}

// Forbidden reports an authenticated caller who may not proceed. code lets
// the gate distinguish USERNAME_REQUIRED, ONBOARDING_REQUIRED and BANNED.
func Forbidden(code, msg string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: msg, Status: http.StatusForbidden}
}

// Conflict reports a uniqueness violation other than account registration.
func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Status: http.StatusConflict}
}

// Internal wraps an unexpected failure. The cause is logged, never returned.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "An unexpected error occurred", Status: http.StatusInternalServerError, Cause: cause}
}

// As extracts the *Error from err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindInternal
}

// FromCode rebuilds an *Error from its wire representation. Unknown codes
// fall back to a status-derived kind.
func FromCode(status int, code, message string) *Error {
	kind, ok := codeKinds[code]
	if !ok {
		kind = statusKind(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kind, Code: code, Message: message, Status: status}
}

var codeKinds = map[string]Kind{
	"DUPLICATE_ACCOUNT":    KindDuplicateAccount,
	"USERNAME_TAKEN":       KindConflict,
	"INVALID_CREDENTIALS":  KindInvalidCredentials,
	"EMAIL_UNCONFIRMED":    KindEmailUnconfirmed,
	"RATE_LIMITED":         KindRateLimited,
	"TIMEOUT":              KindTimeout,
	"NOT_FOUND":            KindNotFound,
	"VALIDATION_ERROR":     KindValidation,
	"UPSTREAM_UNAVAILABLE": KindUpstreamUnavailable,
	"UNAUTHORIZED":         KindUnauthorized,
	"USERNAME_REQUIRED":    KindForbidden,
	"ONBOARDING_REQUIRED":  KindForbidden,
	"BANNED":               KindForbidden,
	"INTERNAL_ERROR":       KindInternal,
}

func statusKind(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return KindUpstreamUnavailable
	default:
		return KindInternal
	}
}
