package identity

import (
	"context"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/clock"
)

// directory adapts the user repository to the resolver's view of accounts.
type directory struct {
	repo Repository
	clk  clock.Clock
}

// NewDirectory wraps the repository as an auth.Directory.
func NewDirectory(repo Repository, clk clock.Clock) auth.Directory {
	return &directory{repo: repo, clk: clk}
}

func (d *directory) LookupByUsername(ctx context.Context, username string) (*auth.DirectoryUser, error) {
	u, err := d.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	status := auth.AccountActive
	switch {
	case u.IsLocked(d.clk.Now()):
		status = auth.AccountLocked
	case !u.IsActive:
		status = auth.AccountDisabled
	}
	return &auth.DirectoryUser{
		UserID:      u.ID,
		Username:    u.Username,
		Authorities: append([]string(nil), u.Roles...),
		Status:      status,
	}, nil
}
