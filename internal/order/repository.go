package order

import (
	"context"
	"sort"
	"sync"

	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/errs"
)

// Repository persists orders. Save enforces optimistic concurrency on
// Version; a stale save fails with KindVersionConflict. ListByUser returns
// newest orders first with zero-based pages.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, pageSize, pageNumber int32) ([]*Order, int64, error)
	Save(ctx context.Context, o *Order) error
	Ping(ctx context.Context) error
}

// MemoryRepository is the in-process Repository used in dev and test mode.
type MemoryRepository struct {
	clk clock.Clock

	mu     sync.RWMutex
	orders map[string]*Order
}

func NewMemoryRepository(clk clock.Clock) *MemoryRepository {
	return &MemoryRepository{clk: clk, orders: make(map[string]*Order)}
}

func (r *MemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[o.ID]; exists {
		return errs.New(errs.KindAlreadyExists, "order id already exists")
	}
	now := r.clk.Now()
	o.Version = 1
	o.CreatedAt = now
	o.UpdatedAt = now
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "order not found")
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string, pageSize, pageNumber int32) ([]*Order, int64, error) {
	r.mu.RLock()
	var all []*Order
	for _, o := range r.orders {
		if o.UserID == userID {
			all = append(all, cloneOrder(o))
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))
	start := int(pageNumber) * int(pageSize)
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + int(pageSize)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *MemoryRepository) Save(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return errs.New(errs.KindNotFound, "order not found")
	}
	if cur.Version != o.Version {
		return errs.New(errs.KindVersionConflict, "order was modified concurrently")
	}
	o.Version++
	o.UpdatedAt = r.clk.Now()
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}
