// Package apperr defines the closed error taxonomy shared by every service.
// Services return *Error values (possibly wrapped); only the HTTP layer maps
// a Kind to a status code.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the category of a domain error
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindUnauthorized
	KindNotFound
	KindConflict
	KindInsufficientTokens
	KindRateLimited
	KindUpstreamUnavailable
	KindGraderOutputInvalid
	KindBusy
	KindSessionNotCompleted
)

var kindNames = map[Kind]string{
	KindInternal:            "INTERNAL",
	KindValidation:          "VALIDATION",
	KindUnauthenticated:     "UNAUTHENTICATED",
	KindUnauthorized:        "UNAUTHORIZED",
	KindNotFound:            "NOT_FOUND",
	KindConflict:            "CONFLICT",
	KindInsufficientTokens:  "INSUFFICIENT_TOKENS",
	KindRateLimited:         "RATE_LIMITED",
	KindUpstreamUnavailable: "UPSTREAM_UNAVAILABLE",
	KindGraderOutputInvalid: "GRADER_OUTPUT_INVALID",
	KindBusy:                "BUSY",
	KindSessionNotCompleted: "SESSION_NOT_COMPLETED",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "INTERNAL"
}

// Codes that refine a kind
const (
	CodeInvalidAmount   = "INVALID_AMOUNT"
	CodeSessionTerminal = "SESSION_TERMINAL"
	CodeAlreadyClaimed  = "ALREADY_CLAIMED"
	CodeEmailTaken      = "EMAIL_TAKEN"
	CodeInvalidCode     = "INVALID_CODE"
	CodeInactiveUser    = "INACTIVE_USER"
	CodePendingPayment  = "PENDING_PAYMENT"
	CodeNoExamAvailable = "NO_EXAM_AVAILABLE"
)

// Error is a domain error with a stable code
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Fields     map[string]string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error whose code is the kind name
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: kind.String(), Message: message}
}

// NewCode creates an error with a refined code
func NewCode(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Code: kind.String(), Message: message, Err: err}
}

// WithFields returns a copy carrying per-field validation messages
func (e *Error) WithFields(fields map[string]string) *Error {
	cp := *e
	cp.Fields = fields
	return &cp
}

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the stable code of err
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return KindInternal.String()
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(what string) *Error { return New(KindNotFound, what+" not found") }

func Conflict(message string) *Error { return New(KindConflict, message) }

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

func Upstream(message string, err error) *Error { return Wrap(KindUpstreamUnavailable, message, err) }

func Busy(message string, err error) *Error { return Wrap(KindBusy, message, err) }

// SessionTerminal is returned when a finished session is mutated
func SessionTerminal(status string) *Error {
	return NewCode(KindConflict, CodeSessionTerminal, "session is already "+status)
}

// InsufficientTokens reports the shortfall of a debit
func InsufficientTokens(balance, required int) *Error {
	return New(KindInsufficientTokens, fmt.Sprintf("balance %d is below the required %d tokens", balance, required))
}

// RateLimited carries the delay after which the caller may retry
func RateLimited(message string, retryAfter time.Duration) *Error {
	e := New(KindRateLimited, message)
	e.RetryAfter = retryAfter
	return e
}
