package apperrors

import (
	"context"
	"errors"
	"strings"
)

type Kind string

const (
	KindTransient  Kind = "transient"
	KindRateLimit  Kind = "rate_limit"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindDecode     Kind = "decode"
	KindBadRequest Kind = "bad_request"
	KindConfig     Kind = "config"
	KindCanceled   Kind = "canceled"
)

// Error is a classified failure. Error() returns the safe message; the cause
// stays reachable through errors.Is / errors.As.
type Error struct {
	Kind        Kind
	SafeMessage string
	Cause       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.SafeMessage); msg != "" {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func defaultSafeMessage(kind Kind) string {
	switch kind {
	case KindTransient:
		return "Temporary upstream error. Please try again."
	case KindRateLimit:
		return "Rate limit exceeded. Please try again later."
	case KindAuth:
		return "Authentication failed. Please verify your API key and permissions."
	case KindValidation:
		return "Response validation failed."
	case KindDecode:
		return "Failed to parse translation response."
	case KindBadRequest:
		return "Request rejected by upstream API."
	case KindConfig:
		return "Invalid configuration."
	case KindCanceled:
		return "Translation canceled."
	default:
		return "Request failed."
	}
}

// New builds a classified error. An empty safeMessage falls back to the
// cause's text and then to a per-kind default.
func New(kind Kind, safeMessage string, cause error) error {
	msg := strings.TrimSpace(safeMessage)
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	if msg == "" {
		msg = defaultSafeMessage(kind)
	}
	return &Error{
		Kind:        kind,
		SafeMessage: msg,
		Cause:       cause,
	}
}

func Transient(err error) error {
	return New(KindTransient, "", err)
}

func RateLimit(err error) error {
	return New(KindRateLimit, "", err)
}

func Auth(err error) error {
	return New(KindAuth, "", err)
}

func Validation(err error) error {
	return New(KindValidation, "", err)
}

func Decode(err error) error {
	return New(KindDecode, "", err)
}

func BadRequest(err error) error {
	return New(KindBadRequest, "", err)
}

func Config(err error) error {
	return New(KindConfig, "", err)
}

// Canceled wraps a context error so callers can tell an abort apart from an
// exhausted retry budget.
func Canceled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return New(KindCanceled, defaultSafeMessage(KindCanceled), err)
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// IsRetryable reports whether the orchestrator may resubmit the batch.
// Unclassified errors are treated as transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCanceled(err) {
		return false
	}
	kind, ok := KindOf(err)
	if !ok {
		return true
	}
	return kind != KindConfig && kind != KindCanceled
}

func IsRateLimit(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindRateLimit
}

func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if kind, ok := KindOf(err); ok && kind == KindCanceled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
