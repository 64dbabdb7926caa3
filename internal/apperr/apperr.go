// Package apperr defines the error kinds shared by the reconciliation flow and
// how each one maps onto an HTTP response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	InvalidSignature          Kind = "invalid_signature"
	MalformedPayload          Kind = "malformed_payload"
	Unauthorized              Kind = "unauthorized"
	OrderNotFound             Kind = "order_not_found"
	TagNotEnrolled            Kind = "tag_not_enrolled"
	PhoneVerificationRequired Kind = "phone_verification_required"
	ProofNotFound             Kind = "proof_not_found"
	AlreadyEnrolled           Kind = "already_enrolled"
	VerificationFailed        Kind = "verification_failed"
	RetrieveFailed            Kind = "retrieve_failed"
	UpstreamUnavailable       Kind = "upstream_unavailable"
	PartialSyncFailure        Kind = "partial_sync_failure"
	Internal                  Kind = "internal"
)

// FieldError is one per-field failure reported by the platform (userErrors).
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, " [%s: %s]", f.Field, f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// FieldsOf returns the per-field errors carried by err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidSignature, Unauthorized:
		return http.StatusUnauthorized
	case MalformedPayload:
		return http.StatusBadRequest
	case OrderNotFound, TagNotEnrolled, ProofNotFound:
		return http.StatusNotFound
	case PhoneVerificationRequired:
		return http.StatusForbidden
	case AlreadyEnrolled:
		return http.StatusConflict
	case RetrieveFailed, UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to customers and warehouse staff.
// Internal detail stays in the logs.
func PublicMessage(kind Kind) string {
	switch kind {
	case InvalidSignature:
		return "invalid signature"
	case MalformedPayload:
		return "malformed request"
	case Unauthorized:
		return "unauthorized"
	case OrderNotFound:
		return "order not found"
	case TagNotEnrolled:
		return "tag not enrolled"
	case PhoneVerificationRequired:
		return "verification required: confirm the last 4 digits of your phone number"
	case ProofNotFound:
		return "proof not found"
	case AlreadyEnrolled:
		return "package already enrolled with a different tag"
	case UpstreamUnavailable, RetrieveFailed:
		return "verification service unavailable, please retry"
	default:
		return "verification failed"
	}
}
