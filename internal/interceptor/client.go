package interceptor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/internal/metrics"
)

// ClientMode selects how the client chain handles credentials.
type ClientMode string

const (
	// ClientModeNone attaches no credentials.
	ClientModeNone ClientMode = "NONE"
	// ClientModePropagate forwards the caller's token, minting one when absent.
	ClientModePropagate ClientMode = "PROPAGATE"
	// ClientModeValidate is PROPAGATE plus a local verification before sending.
	ClientModeValidate ClientMode = "VALIDATE"
)

const (
	mintAttempts = 3
	mintBackoff  = 100 * time.Millisecond
	// Reuse a minted token until this share of its ttl has elapsed, keeping a
	// margin against clock skew.
	mintReuseFraction = 0.9
)

type mintedToken struct {
	token     string
	refreshAt time.Time
}

// ClientChain decorates outbound unary calls with a correlation id and,
// depending on the mode, a bearer token. Minted tokens are cached per
// principal and reused until close to expiry.
type ClientChain struct {
	mode  ClientMode
	codec *auth.Codec
	clk   clock.Clock
	ttl   time.Duration
	log   *slog.Logger

	mu     sync.Mutex
	minted map[string]mintedToken
}

func NewClientChain(mode ClientMode, codec *auth.Codec, clk clock.Clock, tokenTTL time.Duration, log *slog.Logger) *ClientChain {
	return &ClientChain{
		mode:   mode,
		codec:  codec,
		clk:    clk,
		ttl:    tokenTTL,
		log:    log,
		minted: make(map[string]mintedToken),
	}
}

// Unary returns the outbound interceptor.
func (c *ClientChain) Unary() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		cid := auth.CorrelationIDFrom(ctx)
		if cid == "" {
			cid = uuid.NewString()
		}
		pairs := []string{
			CorrelationIDKey, cid,
			RequestIDKey, uuid.NewString(),
		}

		if c.mode != ClientModeNone {
			token, err := c.outboundToken(ctx)
			if err != nil {
				return err
			}
			if token != "" {
				if c.mode == ClientModeValidate {
					if _, err := c.codec.Verify(token); err != nil {
						c.log.Warn("outbound token failed local verification",
							"method", method,
							"correlation_id", cid,
							"cause", string(errs.KindOf(err)),
						)
						return status.Error(codes.Unauthenticated, "outbound token invalid")
					}
				}
				pairs = append(pairs, AuthorizationKey, bearerPrefix+token)
			}
		}

		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// outboundToken picks the caller's token when the request scope carries one,
// or mints a service token for the current principal. A call with neither a
// token nor a principal goes out without credentials.
func (c *ClientChain) outboundToken(ctx context.Context) (string, error) {
	if token := auth.TokenFrom(ctx); token != "" {
		return token, nil
	}
	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return "", nil
	}

	now := c.clk.Now()
	c.mu.Lock()
	entry, cached := c.minted[principal.Username]
	c.mu.Unlock()
	if cached && now.Before(entry.refreshAt) {
		return entry.token, nil
	}

	token, err := c.mint(ctx, principal)
	if err != nil {
		return "", err
	}
	refresh := now.Add(time.Duration(float64(c.ttl) * mintReuseFraction))
	c.mu.Lock()
	c.minted[principal.Username] = mintedToken{token: token, refreshAt: refresh}
	c.mu.Unlock()
	return token, nil
}

func (c *ClientChain) mint(ctx context.Context, p auth.Principal) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= mintAttempts; attempt++ {
		token, err := c.codec.Issue(p, c.ttl)
		if err == nil {
			metrics.TokenMints.WithLabelValues("ok").Inc()
			return token, nil
		}
		lastErr = err
		if attempt < mintAttempts {
			select {
			case <-ctx.Done():
				metrics.TokenMints.WithLabelValues("cancelled").Inc()
				return "", ctx.Err()
			case <-time.After(mintBackoff):
			}
		}
	}
	metrics.TokenMints.WithLabelValues("failed").Inc()
	c.log.Error("token mint failed",
		"principal", p.Username,
		"cause", string(errs.KindOf(lastErr)),
	)
	return "", status.Error(codes.Unauthenticated, "could not obtain service token")
}
