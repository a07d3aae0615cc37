package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "user not found")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindExpired))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindRemoteUnavailable, "peer unreachable", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindRemoteUnavailable, KindOf(err))
}

func TestWithCorrelationID(t *testing.T) {
	orig := New(KindPolicyDenied, "denied")
	tagged := WithCorrelationID(orig, "cid-1")
	assert.Contains(t, tagged.Error(), "cid-1")
	// Original is untouched.
	assert.NotContains(t, orig.Error(), "cid-1")
	assert.Equal(t, KindPolicyDenied, KindOf(tagged))
}

func TestGRPCStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		code codes.Code
	}{
		{KindMalformed, codes.Unauthenticated},
		{KindBadSignature, codes.Unauthenticated},
		{KindExpired, codes.Unauthenticated},
		{KindUnknownSubject, codes.Unauthenticated},
		{KindAccountDisabled, codes.Unauthenticated},
		{KindPolicyDenied, codes.PermissionDenied},
		{KindInvalidInput, codes.InvalidArgument},
		{KindNotFound, codes.NotFound},
		{KindAlreadyExists, codes.AlreadyExists},
		{KindInvalidTransition, codes.FailedPrecondition},
		{KindPreconditionFailed, codes.FailedPrecondition},
		{KindVersionConflict, codes.Aborted},
		{KindRemoteUnavailable, codes.Unavailable},
		{KindCircuitOpen, codes.Unavailable},
		{KindBulkheadFull, codes.Unavailable},
		{KindRemoteDeadline, codes.DeadlineExceeded},
		{KindTokenIssuance, codes.Internal},
		{KindUnexpected, codes.Internal},
	}
	for _, tc := range cases {
		st := GRPCStatus(New(tc.kind, "msg"))
		assert.Equal(t, tc.code, st.Code(), "kind %s", tc.kind)
	}
}

func TestGRPCStatusNeverEchoesUnknownCauses(t *testing.T) {
	st := GRPCStatus(errors.New("secret internals"))
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}

func TestGRPCStatusPassesThroughStatusErrors(t *testing.T) {
	in := status.Error(codes.ResourceExhausted, "slow down")
	st := GRPCStatus(in)
	assert.Equal(t, codes.ResourceExhausted, st.Code())
}

func TestGRPCStatusPrefersKindOverWrappedStatus(t *testing.T) {
	// A classified error that wraps a downstream status keeps its own short
	// description; the nested encoding never reaches the wire.
	in := Wrap(KindRemoteUnavailable, "identity-service unavailable",
		status.Error(codes.Unavailable, "connection refused"))
	st := GRPCStatus(in)
	assert.Equal(t, codes.Unavailable, st.Code())
	assert.Equal(t, "identity-service unavailable", st.Message())
	assert.NotContains(t, st.Message(), "rpc error")
}

func TestGRPCStatusMapsContextErrors(t *testing.T) {
	assert.Equal(t, codes.Canceled, GRPCStatus(context.Canceled).Code())
	assert.Equal(t, codes.DeadlineExceeded, GRPCStatus(context.DeadlineExceeded).Code())
	assert.Equal(t, codes.Canceled, GRPCStatus(fmt.Errorf("await: %w", context.Canceled)).Code())
}

func TestGRPCErrorNil(t *testing.T) {
	require.NoError(t, GRPCError(nil))
}
