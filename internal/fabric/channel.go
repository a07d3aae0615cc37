// Package fabric provides long-lived, bounded client channels to named
// peers: keep-alive, message-size caps, transport-level retry, per-call
// deadlines, and a circuit breaker plus bulkhead around every call.
package fabric

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/errs"
)

// Options collects the per-peer settings a channel is built from.
type Options struct {
	Channel  config.ChannelConfig
	Breaker  config.BreakerConfig
	Retry    config.RetryConfig
	Bulkhead config.BulkheadConfig
	// Fully-qualified method names the transport may retry. Mutating methods
	// stay non-retryable unless listed here.
	RetryableMethods []string
	// Optional outbound interceptor (credential and correlation handling).
	Interceptor grpc.UnaryClientInterceptor
}

// Channel is a managed connection to one peer. All calls go through Do so
// the bulkhead and breaker see every attempt.
type Channel struct {
	peer      string
	conn      *grpc.ClientConn
	breaker   *gobreaker.CircuitBreaker
	bulkhead  *bulkhead
	deadline  time.Duration
	softLimit time.Duration
	log       *slog.Logger
}

// NewChannel dials the peer. The returned channel is ready immediately;
// connection establishment happens lazily on the first call.
func NewChannel(peer string, opts Options, log *slog.Logger) (*Channel, error) {
	if opts.Channel.Address == "" {
		return nil, fmt.Errorf("channel %s: address is required", peer)
	}
	sc, err := serviceConfig(opts.Retry.WithDefaults(), opts.RetryableMethods)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", peer, err)
	}

	creds := insecure.NewCredentials()
	if opts.Channel.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                opts.Channel.Keepalive(),
			Timeout:             opts.Channel.KeepaliveTimeout(),
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(opts.Channel.MaxRecvBytes())),
		grpc.WithDefaultServiceConfig(sc),
	}
	if opts.Interceptor != nil {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(opts.Interceptor))
	}

	conn, err := grpc.NewClient(opts.Channel.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", peer, err)
	}
	return &Channel{
		peer:      peer,
		conn:      conn,
		breaker:   newBreaker(peer, opts.Breaker, log),
		bulkhead:  newBulkhead(peer, opts.Bulkhead),
		deadline:  opts.Channel.Deadline(),
		softLimit: opts.Channel.SoftLimit(),
		log:       log,
	}, nil
}

// Conn exposes the underlying connection for building stubs. Calls made
// outside Do bypass the breaker and bulkhead.
func (c *Channel) Conn() *grpc.ClientConn { return c.conn }

// Close tears down the connection.
func (c *Channel) Close() error { return c.conn.Close() }

// Do runs fn under the full decoration stack: bulkhead admission, circuit
// breaker, then deadline and soft limit. Business errors (bad input, not
// found, denied) pass through without counting against the breaker; only
// unavailability and timeouts do.
func (c *Channel) Do(ctx context.Context, fn func(ctx context.Context, conn *grpc.ClientConn) error) error {
	release, err := c.bulkhead.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	var bizErr error
	_, err = c.breaker.Execute(func() (any, error) {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()

		err := fn(callCtx, c.conn)
		if err == nil {
			return nil, nil
		}
		err = classifyRemote(c.peer, err)
		if errs.Is(err, errs.KindRemoteUnavailable) || errs.Is(err, errs.KindRemoteDeadline) {
			return nil, err
		}
		bizErr = err
		return nil, nil
	})
	if err != nil {
		return breakerError(c.peer, err)
	}
	return bizErr
}

// callContext applies the default deadline when the caller set none, then
// tightens it to the soft limit when one is configured.
func (c *Channel) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cancel := func() {}
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, c.deadline)
	}
	if c.softLimit > 0 {
		softCtx, softCancel := context.WithTimeout(ctx, c.softLimit)
		prev := cancel
		return softCtx, func() { softCancel(); prev() }
	}
	return ctx, cancel
}

// classifyRemote maps transport outcomes onto the error taxonomy so callers
// and the breaker can tell unavailability from business failure.
func classifyRemote(peer string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Newf(errs.KindRemoteDeadline, "call to %s timed out", peer)
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return errs.Wrap(errs.KindRemoteUnavailable, fmt.Sprintf("%s unavailable", peer), err)
	case codes.DeadlineExceeded:
		return errs.Wrap(errs.KindRemoteDeadline, fmt.Sprintf("call to %s timed out", peer), err)
	default:
		return err
	}
}

// serviceConfig renders the per-connection service config: round-robin load
// balancing plus a transport retry policy limited to the listed methods.
// Retries apply only on UNAVAILABLE and DEADLINE_EXCEEDED.
func serviceConfig(retry config.RetryConfig, retryable []string) (string, error) {
	type methodName struct {
		Service string `json:"service"`
		Method  string `json:"method,omitempty"`
	}
	type retryPolicy struct {
		MaxAttempts          int      `json:"maxAttempts"`
		InitialBackoff       string   `json:"initialBackoff"`
		MaxBackoff           string   `json:"maxBackoff"`
		BackoffMultiplier    float64  `json:"backoffMultiplier"`
		RetryableStatusCodes []string `json:"retryableStatusCodes"`
	}
	type methodConfig struct {
		Name        []methodName `json:"name"`
		RetryPolicy *retryPolicy `json:"retryPolicy,omitempty"`
	}
	type svcConfig struct {
		LoadBalancingConfig []map[string]any `json:"loadBalancingConfig"`
		MethodConfig        []methodConfig   `json:"methodConfig,omitempty"`
	}

	cfg := svcConfig{
		LoadBalancingConfig: []map[string]any{{"round_robin": map[string]any{}}},
	}
	if len(retryable) > 0 {
		names := make([]methodName, 0, len(retryable))
		for _, full := range retryable {
			parts := strings.Split(strings.TrimPrefix(full, "/"), "/")
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return "", fmt.Errorf("retryable method %q is not fully qualified", full)
			}
			names = append(names, methodName{Service: parts[0], Method: parts[1]})
		}
		cfg.MethodConfig = []methodConfig{{
			Name: names,
			RetryPolicy: &retryPolicy{
				MaxAttempts:          retry.MaxAttempts,
				InitialBackoff:       fmt.Sprintf("%gs", float64(retry.InitialBackoffMs)/1000),
				MaxBackoff:           fmt.Sprintf("%gs", float64(retry.MaxBackoffMs)/1000),
				BackoffMultiplier:    retry.Multiplier,
				RetryableStatusCodes: []string{"UNAVAILABLE", "DEADLINE_EXCEEDED"},
			},
		}}
	}
	out, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
