package order

import (
	"context"

	"google.golang.org/grpc"

	"github.com/poc/grpc-services/internal/fabric"
	"github.com/poc/grpc-services/pb"
)

// IdentityClient is the UserValidator backed by the identity peer through
// the managed channel, so every validation call is bounded by the bulkhead
// and circuit breaker.
type IdentityClient struct {
	ch *fabric.Channel
}

func NewIdentityClient(ch *fabric.Channel) *IdentityClient {
	return &IdentityClient{ch: ch}
}

func (c *IdentityClient) Validate(ctx context.Context, userID string) (bool, error) {
	var valid bool
	err := c.ch.Do(ctx, func(ctx context.Context, conn *grpc.ClientConn) error {
		resp, err := pb.NewIdentityServiceClient(conn).ValidateUser(ctx, &pb.ValidateUserRequest{UserId: userID})
		if err != nil {
			return err
		}
		valid = resp.Valid
		return nil
	})
	return valid, err
}
