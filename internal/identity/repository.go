package identity

import (
	"context"
	"sync"

	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/errs"
)

// Repository persists user accounts. Save enforces optimistic concurrency on
// Version; a stale save fails with KindVersionConflict.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Save(ctx context.Context, u *User) error
	Ping(ctx context.Context) error
}

// MemoryRepository is the in-process Repository used in dev and test mode.
type MemoryRepository struct {
	clk clock.Clock

	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryRepository(clk clock.Clock) *MemoryRepository {
	return &MemoryRepository{
		clk:        clk,
		byID:       make(map[string]*User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byUsername[u.Username]; taken {
		return errs.New(errs.KindAlreadyExists, "username already taken")
	}
	if _, taken := r.byEmail[u.Email]; taken {
		return errs.New(errs.KindAlreadyExists, "email already registered")
	}
	now := r.clk.Now()
	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := cloneUser(u)
	r.byID[u.ID] = cp
	r.byUsername[u.Username] = u.ID
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	return cloneUser(u), nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "user not found")
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryRepository) Save(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[u.ID]
	if !ok {
		return errs.New(errs.KindNotFound, "user not found")
	}
	if cur.Version != u.Version {
		return errs.New(errs.KindVersionConflict, "user was modified concurrently")
	}
	u.Version++
	u.UpdatedAt = r.clk.Now()
	if cur.Email != u.Email {
		delete(r.byEmail, cur.Email)
		r.byEmail[u.Email] = u.ID
	}
	r.byID[u.ID] = cloneUser(u)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func cloneUser(u *User) *User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	return &cp
}
