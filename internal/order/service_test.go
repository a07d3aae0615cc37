package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/cache"
	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/pb"
)

func newTestService(t *testing.T, validator UserValidator) (*Service, Repository, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Now())
	repo := NewMemoryRepository(clk)
	saga := NewSaga(repo, validator, discardLogger())
	svc := NewService(repo, saga, cache.NewMemory(clk), discardLogger())
	return svc, repo, clk
}

func validCreateRequest() *pb.CreateOrderRequest {
	return &pb.CreateOrderRequest{
		UserId: "u-1",
		Items: []*pb.OrderItem{
			{ProductId: "p-1", Name: "widget", Quantity: 3, UnitPrice: 19.99},
			{ProductId: "p-2", Name: "gadget", Quantity: 1, UnitPrice: 999.99},
			{ProductId: "p-3", Name: "bolt", Quantity: 1, UnitPrice: 0.01},
		},
	}
}

func TestCreateOrderConfirmed(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})

	resp, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, string(StatusConfirmed), resp.Status)
	assert.Equal(t, string(SagaCompleted), resp.SagaState)
	assert.Equal(t, 1059.97, resp.TotalAmount)
	assert.NotEmpty(t, resp.OrderId)
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})

	_, err := svc.CreateOrder(context.Background(), &pb.CreateOrderRequest{UserId: "u-1"})
	assert.True(t, errs.Is(err, errs.KindInvalidInput))
}

func TestCreateOrderRejectsBadQuantityAndPrice(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})

	req := validCreateRequest()
	req.Items[0].Quantity = 0
	_, err := svc.CreateOrder(context.Background(), req)
	assert.True(t, errs.Is(err, errs.KindInvalidInput))

	req = validCreateRequest()
	req.Items[1].UnitPrice = -1
	_, err = svc.CreateOrder(context.Background(), req)
	assert.True(t, errs.Is(err, errs.KindInvalidInput))
}

func TestCreateOrderRejectsMissingUser(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})

	req := validCreateRequest()
	req.UserId = ""
	_, err := svc.CreateOrder(context.Background(), req)
	assert.True(t, errs.Is(err, errs.KindInvalidInput))
}

func TestCreateOrderInvalidUserCancelled(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubValidator{valid: false})

	_, err := svc.CreateOrder(context.Background(), validCreateRequest())
	assert.True(t, errs.Is(err, errs.KindPreconditionFailed), "got %v", err)

	orders, total, lerr := repo.ListByUser(context.Background(), "u-1", 10, 0)
	require.NoError(t, lerr)
	require.Equal(t, int64(1), total)
	assert.Equal(t, StatusCancelled, orders[0].Status)
}

func TestGetOrderOwnership(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})
	resp, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	owner := auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u-1", Username: "alice"})
	_, err = svc.GetOrder(owner, &pb.GetOrderRequest{OrderId: resp.OrderId})
	assert.NoError(t, err)

	// A stranger learns nothing, not even that the order exists.
	stranger := auth.WithPrincipal(context.Background(), auth.Principal{UserID: "u-2", Username: "bob"})
	_, err = svc.GetOrder(stranger, &pb.GetOrderRequest{OrderId: resp.OrderId})
	assert.True(t, errs.Is(err, errs.KindNotFound), "got %v", err)

	admin := auth.WithPrincipal(context.Background(), auth.Principal{
		UserID: "u-3", Username: "root", Authorities: []string{"ROLE_ADMIN"},
	})
	_, err = svc.GetOrder(admin, &pb.GetOrderRequest{OrderId: resp.OrderId})
	assert.NoError(t, err)
}

func TestGetOrderNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})
	_, err := svc.GetOrder(context.Background(), &pb.GetOrderRequest{OrderId: "missing"})
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})
	resp, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	ctx := context.Background()

	// CONFIRMED -> PROCESSING -> SHIPPED -> DELIVERED.
	for _, target := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		updated, err := svc.UpdateOrderStatus(ctx, &pb.UpdateOrderStatusRequest{
			OrderId: resp.OrderId, Status: string(target),
		})
		require.NoError(t, err, "to %s", target)
		assert.Equal(t, string(target), updated.Status)
	}

	// DELIVERED is terminal.
	_, err = svc.UpdateOrderStatus(ctx, &pb.UpdateOrderStatusRequest{
		OrderId: resp.OrderId, Status: string(StatusPending),
	})
	assert.True(t, errs.Is(err, errs.KindInvalidTransition), "got %v", err)
}

func TestUpdateOrderStatusSameStatusNoOp(t *testing.T) {
	svc, repo, _ := newTestService(t, &stubValidator{valid: true})
	resp, err := svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	before, err := repo.GetByID(context.Background(), resp.OrderId)
	require.NoError(t, err)

	updated, err := svc.UpdateOrderStatus(context.Background(), &pb.UpdateOrderStatusRequest{
		OrderId: resp.OrderId, Status: string(StatusConfirmed),
	})
	require.NoError(t, err)
	assert.Equal(t, string(StatusConfirmed), updated.Status)

	after, err := repo.GetByID(context.Background(), resp.OrderId)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "no-op must not write")
}

func TestListUserOrdersPagination(t *testing.T) {
	svc, _, clk := newTestService(t, &stubValidator{valid: true})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CreateOrder(ctx, validCreateRequest())
		require.NoError(t, err)
		clk.Advance(time.Second)
	}

	page, err := svc.ListUserOrders(ctx, &pb.ListUserOrdersRequest{UserId: "u-1", PageSize: 2, PageNumber: 0})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
	assert.Equal(t, int64(5), page.TotalItems)
	assert.Equal(t, int32(3), page.TotalPages)
	assert.Equal(t, int32(0), page.CurrentPage)

	// Newest first across pages.
	next, err := svc.ListUserOrders(ctx, &pb.ListUserOrdersRequest{UserId: "u-1", PageSize: 2, PageNumber: 1})
	require.NoError(t, err)
	require.Len(t, next.Orders, 2)
	assert.True(t, page.Orders[0].CreatedAt.AsTime().After(next.Orders[0].CreatedAt.AsTime()))

	last, err := svc.ListUserOrders(ctx, &pb.ListUserOrdersRequest{UserId: "u-1", PageSize: 2, PageNumber: 2})
	require.NoError(t, err)
	assert.Len(t, last.Orders, 1)

	empty, err := svc.ListUserOrders(ctx, &pb.ListUserOrdersRequest{UserId: "u-1", PageSize: 2, PageNumber: 9})
	require.NoError(t, err)
	assert.Empty(t, empty.Orders)
}

func TestListUserOrdersRejectsNegativePage(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})
	_, err := svc.ListUserOrders(context.Background(), &pb.ListUserOrdersRequest{UserId: "u-1", PageNumber: -1})
	assert.True(t, errs.Is(err, errs.KindInvalidInput))
}

func TestHealthCheck(t *testing.T) {
	svc, _, _ := newTestService(t, &stubValidator{valid: true})
	resp, err := svc.HealthCheck(context.Background(), &pb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, "SERVING", resp.Status)
}
