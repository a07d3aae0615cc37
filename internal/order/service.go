package order

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/cache"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/internal/metrics"
	"github.com/poc/grpc-services/pb"
)

const (
	readCacheTTL    = 15 * time.Minute
	createCacheTTL  = 24 * time.Hour
	orderKeyPrefix  = "order:"
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service implements pb.OrderServiceServer.
type Service struct {
	pb.UnimplementedOrderServiceServer

	repo  Repository
	saga  *Saga
	store cache.Store
	log   *slog.Logger
}

func NewService(repo Repository, saga *Saga, store cache.Store, log *slog.Logger) *Service {
	return &Service{repo: repo, saga: saga, store: store, log: log}
}

func (s *Service) CreateOrder(ctx context.Context, req *pb.CreateOrderRequest) (*pb.OrderResponse, error) {
	if req.UserId == "" {
		return nil, errs.New(errs.KindInvalidInput, "user_id is required")
	}
	if len(req.Items) == 0 {
		return nil, errs.New(errs.KindInvalidInput, "order must contain at least one item")
	}
	items := make([]Item, 0, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity < 1 {
			return nil, errs.Newf(errs.KindInvalidInput, "item %d: quantity must be at least 1", i)
		}
		if it.UnitPrice < 0 {
			return nil, errs.Newf(errs.KindInvalidInput, "item %d: unit price must not be negative", i)
		}
		items = append(items, Item{
			ProductID:      it.ProductId,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: CentsFromFloat(it.UnitPrice),
		})
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          req.UserId,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	}
	o.TotalCents = o.ComputeTotal()

	if err := s.saga.Run(ctx, o); err != nil {
		return nil, err
	}
	s.warm(ctx, o)
	s.log.Info("order confirmed",
		"order_id", o.ID,
		"user_id", o.UserID,
		"correlation_id", auth.CorrelationIDFrom(ctx),
	)
	return toResponse(o), nil
}

func (s *Service) GetOrder(ctx context.Context, req *pb.GetOrderRequest) (*pb.OrderResponse, error) {
	if req.OrderId == "" {
		return nil, errs.New(errs.KindInvalidInput, "order_id is required")
	}
	o, err := s.loadOrder(ctx, req.OrderId)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(ctx, o); err != nil {
		return nil, err
	}
	return toResponse(o), nil
}

func (s *Service) ListUserOrders(ctx context.Context, req *pb.ListUserOrdersRequest) (*pb.ListUserOrdersResponse, error) {
	if req.UserId == "" {
		return nil, errs.New(errs.KindInvalidInput, "user_id is required")
	}
	if req.PageNumber < 0 {
		return nil, errs.New(errs.KindInvalidInput, "page_number must not be negative")
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	orders, total, err := s.repo.ListByUser(ctx, req.UserId, pageSize, req.PageNumber)
	if err != nil {
		return nil, err
	}
	out := make([]*pb.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResponse(o))
	}
	totalPages := int32((total + int64(pageSize) - 1) / int64(pageSize))
	return &pb.ListUserOrdersResponse{
		Orders:      out,
		TotalPages:  totalPages,
		TotalItems:  total,
		CurrentPage: req.PageNumber,
	}, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, req *pb.UpdateOrderStatusRequest) (*pb.OrderResponse, error) {
	if req.OrderId == "" {
		return nil, errs.New(errs.KindInvalidInput, "order_id is required")
	}
	o, err := s.repo.GetByID(ctx, req.OrderId)
	if err != nil {
		return nil, err
	}
	target := Status(req.Status)
	if o.Status == target {
		// Re-asserting the current status is a no-op.
		return toResponse(o), nil
	}
	if err := o.Transition(target); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, o); err != nil {
		return nil, err
	}
	s.invalidate(ctx, o.ID)
	s.log.Info("order status updated",
		"order_id", o.ID,
		"status", string(o.Status),
		"correlation_id", auth.CorrelationIDFrom(ctx),
	)
	return toResponse(o), nil
}

func (s *Service) HealthCheck(ctx context.Context, _ *pb.HealthCheckRequest) (*pb.HealthCheckResponse, error) {
	if err := s.repo.Ping(ctx); err != nil {
		return &pb.HealthCheckResponse{Status: "NOT_SERVING", Message: "storage unreachable"}, nil
	}
	return &pb.HealthCheckResponse{Status: "SERVING"}, nil
}

// loadOrder reads through the order cache. Cache failures are non-fatal; the
// repository stays authoritative.
func (s *Service) loadOrder(ctx context.Context, id string) (*Order, error) {
	key := orderKeyPrefix + id
	if raw, found, err := s.store.Get(ctx, key); err != nil {
		s.log.Warn("order cache read failed", "order_id", id, "error", err)
	} else if found {
		o := &Order{}
		if err := json.Unmarshal([]byte(raw), o); err == nil {
			metrics.CacheHits.WithLabelValues("order").Inc()
			return o, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("order").Inc()

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(o); err == nil {
		if err := s.store.Set(ctx, key, string(raw), readCacheTTL); err != nil {
			s.log.Warn("order cache write failed", "order_id", id, "error", err)
		}
	}
	return o, nil
}

// warm stores a freshly confirmed order with the long post-create TTL so the
// first reads skip the repository.
func (s *Service) warm(ctx context.Context, o *Order) {
	raw, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, orderKeyPrefix+o.ID, string(raw), createCacheTTL); err != nil {
		s.log.Warn("order cache warm write failed", "order_id", o.ID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.store.Del(ctx, orderKeyPrefix+id); err != nil {
		s.log.Warn("order cache invalidate failed", "order_id", id, "error", err)
	}
}

// authorizeOwner admits the order's owner and administrators. With no
// principal on the context (reduced security modes) the check is skipped.
// Other callers get NotFound, never confirmation that the order exists.
func (s *Service) authorizeOwner(ctx context.Context, o *Order) error {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return nil
	}
	if p.UserID == o.UserID || p.HasAuthority("ROLE_ADMIN") {
		return nil
	}
	return errs.New(errs.KindNotFound, "order not found")
}

func toResponse(o *Order) *pb.OrderResponse {
	items := make([]*pb.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, &pb.OrderItem{
			ProductId: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: FloatFromCents(it.UnitPriceCents),
		})
	}
	return &pb.OrderResponse{
		OrderId:         o.ID,
		UserId:          o.UserID,
		Status:          string(o.Status),
		SagaState:       string(o.SagaState),
		TotalAmount:     FloatFromCents(o.TotalCents),
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		CreatedAt:       timestamppb.New(o.CreatedAt),
		UpdatedAt:       timestamppb.New(o.UpdatedAt),
	}
}
