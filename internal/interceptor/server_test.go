package interceptor

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/errs"
)

const testMethod = "/poc.test.TestService/DoThing"

type fakeDirectory struct {
	users map[string]*auth.DirectoryUser
}

func (d *fakeDirectory) LookupByUsername(_ context.Context, username string) (*auth.DirectoryUser, error) {
	u, ok := d.users[username]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	return u, nil
}

type fakeServerStream struct {
	trailer metadata.MD
}

func (s *fakeServerStream) Method() string                  { return testMethod }
func (s *fakeServerStream) SetHeader(metadata.MD) error     { return nil }
func (s *fakeServerStream) SendHeader(metadata.MD) error    { return nil }
func (s *fakeServerStream) SetTrailer(md metadata.MD) error { s.trailer = metadata.Join(s.trailer, md); return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCodec(t *testing.T) *auth.Codec {
	t.Helper()
	codec, err := auth.NewCodec(config.JWTConfig{
		Secret:   base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		Issuer:   "identity-service",
		Audience: "poc-services",
	}, clock.Real{})
	require.NoError(t, err)
	return codec
}

func testChain(t *testing.T, mode ServerMode, excluded []string, policies map[string]Policy) (*ServerChain, *auth.Codec) {
	t.Helper()
	codec := testCodec(t)
	dir := &fakeDirectory{users: map[string]*auth.DirectoryUser{
		"alice": {UserID: "u-1", Username: "alice", Authorities: []string{"ROLE_USER"}, Status: auth.AccountActive},
		"admin": {UserID: "u-2", Username: "admin", Authorities: []string{"ROLE_ADMIN"}, Status: auth.AccountActive},
	}}
	resolver := auth.NewResolver(dir, clock.Real{})
	return NewServerChain(mode, codec, resolver, excluded, policies, discardLogger()), codec
}

func serverCtx(md metadata.MD) (context.Context, *fakeServerStream) {
	stream := &fakeServerStream{}
	ctx := grpc.NewContextWithServerTransportStream(context.Background(), stream)
	if md != nil {
		ctx = metadata.NewIncomingContext(ctx, md)
	}
	return ctx, stream
}

// invoke runs the chain stages in registration order around the handler.
func invoke(chain *ServerChain, ctx context.Context, handler grpc.UnaryHandler) (any, error) {
	info := &grpc.UnaryServerInfo{FullMethod: testMethod}
	stages := chain.Interceptors()
	wrapped := handler
	for i := len(stages) - 1; i >= 0; i-- {
		stage := stages[i]
		next := wrapped
		wrapped = func(ctx context.Context, req any) (any, error) {
			return stage(ctx, req, info, next)
		}
	}
	return wrapped(ctx, "req")
}

func bearer(t *testing.T, codec *auth.Codec, username string, roles ...string) string {
	t.Helper()
	token, err := codec.Issue(auth.Principal{Username: username, Authorities: roles}, time.Hour)
	require.NoError(t, err)
	return bearerPrefix + token
}

func TestCorrelationIDAdopted(t *testing.T) {
	chain, codec := testChain(t, ServerModeFull, nil, nil)
	ctx, stream := serverCtx(metadata.Pairs(
		CorrelationIDKey, "cid-inbound",
		AuthorizationKey, bearer(t, codec, "alice"),
	))

	var seen string
	_, err := invoke(chain, ctx, func(ctx context.Context, _ any) (any, error) {
		seen = auth.CorrelationIDFrom(ctx)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cid-inbound", seen)
	assert.Equal(t, []string{"cid-inbound"}, stream.trailer.Get(CorrelationIDKey))
}

func TestCorrelationIDMinted(t *testing.T) {
	chain, codec := testChain(t, ServerModeFull, nil, nil)
	ctx, stream := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))

	var seen string
	_, err := invoke(chain, ctx, func(ctx context.Context, _ any) (any, error) {
		seen = auth.CorrelationIDFrom(ctx)
		return "ok", nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, []string{seen}, stream.trailer.Get(CorrelationIDKey))
}

func TestFullModePublishesPrincipal(t *testing.T) {
	chain, codec := testChain(t, ServerModeFull, nil, nil)
	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))

	var p auth.Principal
	var ok bool
	_, err := invoke(chain, ctx, func(ctx context.Context, _ any) (any, error) {
		p, ok = auth.PrincipalFrom(ctx)
		return "ok", nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u-1", p.UserID)
}

func TestMissingTokenRejected(t *testing.T) {
	chain, _ := testChain(t, ServerModeFull, nil, nil)
	ctx, _ := serverCtx(nil)

	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestExpiredTokenRejected(t *testing.T) {
	chain, _ := testChain(t, ServerModeFull, nil, nil)

	clk := clock.NewFake(time.Now().Add(-2 * time.Hour))
	oldCodec, err := auth.NewCodec(config.JWTConfig{
		Secret:   base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
		Issuer:   "identity-service",
		Audience: "poc-services",
	}, clk)
	require.NoError(t, err)
	token, err := oldCodec.Issue(auth.Principal{Username: "alice"}, time.Hour)
	require.NoError(t, err)

	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearerPrefix+token))
	_, err = invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestUnknownSubjectRejected(t *testing.T) {
	chain, codec := testChain(t, ServerModeFull, nil, nil)
	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "ghost")))

	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestExcludedMethodBypassesAuth(t *testing.T) {
	chain, _ := testChain(t, ServerModeFull, []string{testMethod}, nil)
	ctx, _ := serverCtx(nil)

	resp, err := invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestNoneModeBypassesAuth(t *testing.T) {
	chain, _ := testChain(t, ServerModeNone, nil, nil)
	ctx, _ := serverCtx(nil)

	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
}

func TestBasicModeVerifiesWithoutPrincipal(t *testing.T) {
	chain, codec := testChain(t, ServerModeBasic, nil, nil)
	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))

	_, err := invoke(chain, ctx, func(ctx context.Context, _ any) (any, error) {
		_, ok := auth.PrincipalFrom(ctx)
		assert.False(t, ok)
		return "ok", nil
	})
	require.NoError(t, err)
}

func TestBasicModeRejectsMissingToken(t *testing.T) {
	chain, _ := testChain(t, ServerModeBasic, nil, nil)
	ctx, _ := serverCtx(nil)

	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestRolePolicyDenies(t *testing.T) {
	policies := map[string]Policy{testMethod: Role("ROLE_ADMIN")}
	chain, codec := testChain(t, ServerModeFull, nil, policies)

	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))
	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	ctx, _ = serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "admin")))
	_, err = invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })
	assert.NoError(t, err)
}

func TestSelfOrRolePolicy(t *testing.T) {
	type req struct{ target string }
	policies := map[string]Policy{
		testMethod: SelfOrRole(func(r any) string { return r.(req).target }, "ROLE_ADMIN"),
	}
	chain, codec := testChain(t, ServerModeFull, nil, policies)
	info := &grpc.UnaryServerInfo{FullMethod: testMethod}
	handler := func(context.Context, any) (any, error) { return "ok", nil }
	run := func(authz string, r req) error {
		ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, authz))
		stages := chain.Interceptors()
		wrapped := handler
		for i := len(stages) - 1; i >= 0; i-- {
			stage := stages[i]
			next := wrapped
			wrapped = func(ctx context.Context, rq any) (any, error) { return stage(ctx, rq, info, next) }
		}
		_, err := wrapped(ctx, r)
		return err
	}

	assert.NoError(t, run(bearer(t, codec, "alice"), req{target: "u-1"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(run(bearer(t, codec, "alice"), req{target: "u-2"})))
	assert.NoError(t, run(bearer(t, codec, "admin"), req{target: "u-1"}))
}

// The order server resolves principals from token claims alone (nil
// directory); owner-or-admin policies must still hold for regular users
// calling about their own account.
func TestSelfPolicyWithClaimsOnlyResolver(t *testing.T) {
	type req struct{ target string }
	codec := testCodec(t)
	policies := map[string]Policy{
		testMethod: SelfOrRole(func(r any) string { return r.(req).target }, "ROLE_ADMIN"),
	}
	chain := NewServerChain(ServerModeFull, codec, auth.NewResolver(nil, clock.Real{}), nil, policies, discardLogger())

	const aliceID = "7f9c3a52-6a1d-4a0e-9f0b-2d6c1f4b8e21"
	token, err := codec.Issue(auth.Principal{
		UserID: aliceID, Username: "alice", Authorities: []string{"ROLE_USER"},
	}, time.Hour)
	require.NoError(t, err)

	info := &grpc.UnaryServerInfo{FullMethod: testMethod}
	run := func(r req) error {
		ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearerPrefix+token))
		stages := chain.Interceptors()
		wrapped := grpc.UnaryHandler(func(context.Context, any) (any, error) { return "ok", nil })
		for i := len(stages) - 1; i >= 0; i-- {
			stage := stages[i]
			next := wrapped
			wrapped = func(ctx context.Context, rq any) (any, error) { return stage(ctx, rq, info, next) }
		}
		_, err := wrapped(ctx, r)
		return err
	}

	assert.NoError(t, run(req{target: aliceID}), "owner must reach the handler")
	assert.Equal(t, codes.PermissionDenied, status.Code(run(req{target: "someone-else"})))
}

// A rejection must cross the recovery stage without being wrapped a second
// time: the description stays short and carries no taxonomy label or nested
// status encoding.
func TestRejectionDescriptionStaysClean(t *testing.T) {
	policies := map[string]Policy{testMethod: Role("ROLE_ADMIN")}
	chain, codec := testChain(t, ServerModeFull, nil, policies)

	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))
	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) { return "ok", nil })

	require.Equal(t, codes.PermissionDenied, status.Code(err))
	msg := status.Convert(err).Message()
	assert.Equal(t, "caller lacks required role", msg)
	assert.NotContains(t, msg, "UNEXPECTED")
	assert.NotContains(t, msg, "rpc error")
}

func TestPanicBecomesInternal(t *testing.T) {
	chain, codec := testChain(t, ServerModeFull, nil, nil)
	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))

	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.NotContains(t, status.Convert(err).Message(), "boom")
}

func TestDomainErrorsMappedToStatus(t *testing.T) {
	chain, codec := testChain(t, ServerModeFull, nil, nil)
	ctx, _ := serverCtx(metadata.Pairs(AuthorizationKey, bearer(t, codec, "alice")))

	_, err := invoke(chain, ctx, func(context.Context, any) (any, error) {
		return nil, errs.New(errs.KindNotFound, "order not found")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
