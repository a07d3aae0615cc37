// Package errs defines the failure kinds shared by the identity and order
// services and their mapping onto gRPC status codes. Handlers classify
// failures with a Kind; the transport edge translates the Kind to a wire
// status and attaches the correlation id to the response trailers.
package errs

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind identifies a class of failure independent of the wire encoding.
type Kind string

const (
	// Token codec failures.
	KindMalformed            Kind = "MALFORMED"
	KindBadSignature         Kind = "BAD_SIGNATURE"
	KindExpired              Kind = "EXPIRED"
	KindWrongIssuer          Kind = "WRONG_ISSUER"
	KindWrongAudience        Kind = "WRONG_AUDIENCE"
	KindMissingRequiredClaim Kind = "MISSING_REQUIRED_CLAIM"
	KindTokenIssuance        Kind = "TOKEN_ISSUANCE"

	// Principal resolution failures.
	KindUnknownSubject  Kind = "UNKNOWN_SUBJECT"
	KindAccountDisabled Kind = "ACCOUNT_DISABLED"

	// Authorization.
	KindPolicyDenied Kind = "POLICY_DENIED"

	// Domain failures.
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindNotFound           Kind = "NOT_FOUND"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindVersionConflict    Kind = "VERSION_CONFLICT"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"

	// Remote call and resilience failures.
	KindRemoteUnavailable Kind = "REMOTE_UNAVAILABLE"
	KindRemoteDeadline    Kind = "REMOTE_DEADLINE"
	KindCircuitOpen       Kind = "CIRCUIT_OPEN"
	KindBulkheadFull      Kind = "BULKHEAD_FULL"
	KindCacheUnavailable  Kind = "CACHE_UNAVAILABLE"

	// Everything else.
	KindUnexpected Kind = "UNEXPECTED"
)

// Error carries a Kind, a short caller-safe message and an optional cause.
// The message must never embed tokens, passwords or stack frames.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.CorrelationID, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given kind and message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind from err, or KindUnexpected if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// WithCorrelationID returns a copy of err tagged with the correlation id, so
// the id survives into logs and the wire description.
func WithCorrelationID(err error, cid string) error {
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		cp.CorrelationID = cid
		return &cp
	}
	return &Error{Kind: KindUnexpected, Message: err.Error(), CorrelationID: cid, Err: err}
}

// code maps a Kind to its wire status code.
func code(kind Kind) codes.Code {
	switch kind {
	case KindMalformed, KindBadSignature, KindExpired, KindWrongIssuer,
		KindWrongAudience, KindMissingRequiredClaim, KindUnknownSubject,
		KindAccountDisabled:
		return codes.Unauthenticated
	case KindPolicyDenied:
		return codes.PermissionDenied
	case KindInvalidInput:
		return codes.InvalidArgument
	case KindNotFound:
		return codes.NotFound
	case KindAlreadyExists:
		return codes.AlreadyExists
	case KindInvalidTransition, KindPreconditionFailed:
		return codes.FailedPrecondition
	case KindVersionConflict:
		return codes.Aborted
	case KindRemoteUnavailable, KindCircuitOpen, KindBulkheadFull, KindCacheUnavailable:
		return codes.Unavailable
	case KindRemoteDeadline:
		return codes.DeadlineExceeded
	case KindTokenIssuance, KindUnexpected:
		return codes.Internal
	default:
		return codes.Internal
	}
}

// GRPCStatus translates err into a wire status. Unexpected causes are never
// echoed: the wire description is the classified message only. The Kind check
// runs first so a classified error wrapping a downstream status keeps its own
// short description rather than the re-encoded one.
func GRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var e *Error
	if errors.As(err, &e) {
		return status.New(code(e.Kind), e.Message)
	}
	// Pass through errors that already are wire statuses.
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s
	}
	if errors.Is(err, context.Canceled) {
		return status.New(codes.Canceled, "request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.New(codes.DeadlineExceeded, "deadline exceeded")
	}
	return status.New(codes.Internal, "internal error")
}

// GRPCError is GRPCStatus(err).Err() for use at handler boundaries.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	return GRPCStatus(err).Err()
}
