package auth

import (
	"context"
	"sync"
	"time"

	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/errs"
)

// AccountStatus is the coarse account state a directory reports.
type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountDisabled AccountStatus = "DISABLED"
	AccountLocked   AccountStatus = "LOCKED"
)

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID      string
	Username    string
	Authorities []string
	Status      AccountStatus
}

// HasAuthority reports whether the principal carries the given authority.
func (p Principal) HasAuthority(a string) bool {
	for _, have := range p.Authorities {
		if have == a {
			return true
		}
	}
	return false
}

// DirectoryUser is the account record a Directory returns for a subject.
type DirectoryUser struct {
	UserID      string
	Username    string
	Authorities []string
	Status      AccountStatus
}

// Directory looks up account records by username. Implementations return an
// error of kind KindUnknownSubject when no account exists.
type Directory interface {
	LookupByUsername(ctx context.Context, username string) (*DirectoryUser, error)
}

const resolverCacheTTL = 5 * time.Minute

type resolverEntry struct {
	principal Principal
	deadline  time.Time
}

// Resolver turns verified claims into a Principal, consulting the directory
// and caching successful resolutions for a short period. A nil directory
// resolves from the claims alone.
type Resolver struct {
	dir Directory
	clk clock.Clock
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]resolverEntry
}

func NewResolver(dir Directory, clk clock.Clock) *Resolver {
	return &Resolver{
		dir:   dir,
		clk:   clk,
		ttl:   resolverCacheTTL,
		cache: make(map[string]resolverEntry),
	}
}

// Resolve maps the claim set to a live principal. Disabled and locked
// accounts fail resolution even when the token itself is valid; those
// outcomes are never cached.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (Principal, error) {
	username := claims.Username()
	if username == "" {
		return Principal{}, errs.New(errs.KindMissingRequiredClaim, "token has no subject")
	}
	if r.dir == nil {
		return r.ResolveFromClaimsOnly(claims), nil
	}

	now := r.clk.Now()
	r.mu.RLock()
	entry, ok := r.cache[username]
	r.mu.RUnlock()
	if ok && now.Before(entry.deadline) {
		return entry.principal, nil
	}

	user, err := r.dir.LookupByUsername(ctx, username)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return Principal{}, errs.Wrap(errs.KindUnknownSubject, "subject not found", err)
		}
		return Principal{}, err
	}
	switch user.Status {
	case AccountDisabled:
		return Principal{}, errs.New(errs.KindAccountDisabled, "account disabled")
	case AccountLocked:
		return Principal{}, errs.New(errs.KindAccountDisabled, "account locked")
	}

	p := Principal{
		UserID:      user.UserID,
		Username:    user.Username,
		Authorities: append([]string(nil), user.Authorities...),
		Status:      AccountActive,
	}
	r.mu.Lock()
	r.cache[username] = resolverEntry{principal: p, deadline: now.Add(r.ttl)}
	r.mu.Unlock()
	return p, nil
}

// ResolveFromClaimsOnly builds a principal from the claim set without a
// directory round trip. The user id comes straight from the token, so owner
// checks hold on services that have no account store of their own.
func (r *Resolver) ResolveFromClaimsOnly(claims *Claims) Principal {
	return Principal{
		UserID:      claims.UserID,
		Username:    claims.Username(),
		Authorities: append([]string(nil), claims.Roles...),
		Status:      AccountActive,
	}
}

// Invalidate drops the cached resolution for a username, if any. Called after
// profile or status changes so the next request observes them.
func (r *Resolver) Invalidate(username string) {
	r.mu.Lock()
	delete(r.cache, username)
	r.mu.Unlock()
}
