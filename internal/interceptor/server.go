// Package interceptor implements the server and client unary interceptor
// chains: correlation ids, authentication, authorization and outbound
// credential handling.
package interceptor

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/internal/metrics"
)

// Metadata keys shared by both chains.
const (
	CorrelationIDKey = "x-correlation-id"
	RequestIDKey     = "x-request-id"
	AuthorizationKey = "authorization"
	bearerPrefix     = "Bearer "
)

// ServerMode selects how much identity work the server chain performs.
type ServerMode string

const (
	// ServerModeNone disables authentication entirely.
	ServerModeNone ServerMode = "NONE"
	// ServerModeBasic verifies token integrity and claims only.
	ServerModeBasic ServerMode = "BASIC_VALIDATION"
	// ServerModeFull verifies the token and resolves the live account.
	ServerModeFull ServerMode = "FULL"
)

// Policy decides whether the resolved principal may invoke a method. The
// request is passed so policies can compare against its target.
type Policy func(ctx context.Context, p auth.Principal, req any) error

// Authenticated admits any resolved principal.
func Authenticated() Policy {
	return func(context.Context, auth.Principal, any) error { return nil }
}

// Role admits principals holding any of the given authorities.
func Role(roles ...string) Policy {
	return func(_ context.Context, p auth.Principal, _ any) error {
		for _, r := range roles {
			if p.HasAuthority(r) {
				return nil
			}
		}
		return errs.New(errs.KindPolicyDenied, "caller lacks required role")
	}
}

// SelfOrRole admits the principal when the request targets their own account,
// or when they hold any of the given authorities. target extracts the user id
// the request operates on.
func SelfOrRole(target func(req any) string, roles ...string) Policy {
	byRole := Role(roles...)
	return func(ctx context.Context, p auth.Principal, req any) error {
		if id := target(req); id != "" && (id == p.UserID || id == p.Username) {
			return nil
		}
		return byRole(ctx, p, req)
	}
}

// ServerChain is the inbound security pipeline. Interceptors() returns the
// stages in invocation order; register them with grpc.ChainUnaryInterceptor.
type ServerChain struct {
	mode     ServerMode
	codec    *auth.Codec
	resolver *auth.Resolver
	excluded map[string]bool
	policies map[string]Policy
	log      *slog.Logger
}

func NewServerChain(mode ServerMode, codec *auth.Codec, resolver *auth.Resolver, excluded []string, policies map[string]Policy, log *slog.Logger) *ServerChain {
	ex := make(map[string]bool, len(excluded))
	for _, m := range excluded {
		ex[m] = true
	}
	if policies == nil {
		policies = map[string]Policy{}
	}
	return &ServerChain{
		mode:     mode,
		codec:    codec,
		resolver: resolver,
		excluded: ex,
		policies: policies,
		log:      log,
	}
}

// Interceptors returns correlation, recovery and auth stages in order.
func (c *ServerChain) Interceptors() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		c.correlationUnary,
		c.recoveryUnary,
		c.authUnary,
	}
}

// correlationUnary adopts the caller's correlation id or mints one, attaches
// it to the request context and echoes it in the response trailer. Request
// state lives on the context, so it vanishes with the request; nothing leaks
// across calls.
func (c *ServerChain) correlationUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	cid := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(CorrelationIDKey); len(vals) > 0 {
			cid = strings.TrimSpace(vals[0])
		}
	}
	if cid == "" {
		cid = uuid.NewString()
	}
	ctx = auth.WithCorrelationID(ctx, cid)
	grpc.SetTrailer(ctx, metadata.Pairs(CorrelationIDKey, cid))
	return handler(ctx, req)
}

// recoveryUnary converts panics into codes.Internal and maps domain errors to
// gRPC statuses on the way out.
func (c *ServerChain) recoveryUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic",
				"method", info.FullMethod,
				"correlation_id", auth.CorrelationIDFrom(ctx),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = nil
			err = errs.GRPCError(errs.New(errs.KindUnexpected, "internal error"))
		}
	}()
	resp, err = handler(ctx, req)
	if err != nil {
		err = c.toStatus(ctx, err)
	}
	return resp, err
}

// toStatus maps an error to a wire status exactly once. Errors that already
// are statuses (forwarded from a downstream call) pass through untouched so
// their descriptions are not re-encoded.
func (c *ServerChain) toStatus(ctx context.Context, err error) error {
	var domain *errs.Error
	if !errors.As(err, &domain) {
		if _, ok := status.FromError(err); ok {
			return err
		}
	}
	return errs.GRPCError(errs.WithCorrelationID(err, auth.CorrelationIDFrom(ctx)))
}

// authUnary authenticates the caller per the configured mode and, in FULL
// mode, applies the method's authorization policy. A request without an
// Authorization header proceeds as anonymous and is then rejected by the
// default policy, which requires an authenticated caller. Excluded methods
// skip both steps.
func (c *ServerChain) authUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if c.mode == ServerModeNone || c.excluded[info.FullMethod] {
		return handler(ctx, req)
	}

	token, present, err := bearerFromContext(ctx)
	if err != nil {
		return nil, c.reject(ctx, info.FullMethod, err)
	}

	var principal *auth.Principal
	if present {
		claims, err := c.codec.Verify(token)
		if err != nil {
			return nil, c.reject(ctx, info.FullMethod, err)
		}
		ctx = auth.WithToken(ctx, token)
		if c.mode == ServerModeFull {
			p, err := c.resolver.Resolve(ctx, claims)
			if err != nil {
				return nil, c.reject(ctx, info.FullMethod, err)
			}
			principal = &p
			ctx = auth.WithPrincipal(ctx, p)
		}
	}

	if c.mode == ServerModeFull {
		if principal == nil {
			return nil, c.reject(ctx, info.FullMethod, errs.New(errs.KindMalformed, "missing token"))
		}
		policy, ok := c.policies[info.FullMethod]
		if !ok {
			policy = Authenticated()
		}
		if err := policy(ctx, *principal, req); err != nil {
			return nil, c.reject(ctx, info.FullMethod, err)
		}
	} else if !present {
		// BASIC_VALIDATION still insists on a verifiable token.
		return nil, c.reject(ctx, info.FullMethod, errs.New(errs.KindMalformed, "missing token"))
	}
	return handler(ctx, req)
}

// reject records the failure and returns the domain error unchanged. The
// recovery stage above performs the one translation to a wire status.
func (c *ServerChain) reject(ctx context.Context, method string, err error) error {
	kind := errs.KindOf(err)
	metrics.AuthFailures.WithLabelValues(string(kind)).Inc()
	c.log.Warn("request rejected",
		"method", method,
		"correlation_id", auth.CorrelationIDFrom(ctx),
		"cause", string(kind),
	)
	return err
}

// bearerFromContext extracts the bearer token from the Authorization
// metadata. present is false when no header was sent at all; a header that is
// sent but not a usable bearer token is an error.
func bearerFromContext(ctx context.Context) (token string, present bool, err error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false, nil
	}
	vals := md.Get(AuthorizationKey)
	if len(vals) == 0 {
		return "", false, nil
	}
	raw := vals[0]
	if !strings.HasPrefix(raw, bearerPrefix) {
		return "", true, errs.New(errs.KindMalformed, "authorization header is not a bearer token")
	}
	token = strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	if token == "" {
		return "", true, errs.New(errs.KindMalformed, "empty bearer token")
	}
	return token, true, nil
}
