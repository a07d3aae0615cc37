package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poc/grpc-services/internal/errs"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusProcessing},
		{StatusConfirmed, StatusCancelled},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusCancelled},
		{StatusProcessing, StatusFailed},
		{StatusShipped, StatusDelivered},
		{StatusFailed, StatusProcessing},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusShipped},
		{StatusPending, StatusDelivered},
		{StatusConfirmed, StatusDelivered},
		{StatusShipped, StatusCancelled},
		{StatusDelivered, StatusPending},
		{StatusDelivered, StatusProcessing},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusConfirmed},
		{StatusFailed, StatusShipped},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSameStatusIsNoOp(t *testing.T) {
	for s := range statusTransitions {
		assert.True(t, s.CanTransitionTo(s), "%s -> %s", s, s)
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	o := &Order{Status: StatusPending}
	err := o.Transition(Status("SHINY"))
	assert.True(t, errs.Is(err, errs.KindInvalidInput))
	assert.Equal(t, StatusPending, o.Status)
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	o := &Order{Status: StatusDelivered}
	err := o.Transition(StatusPending)
	assert.True(t, errs.Is(err, errs.KindInvalidTransition))
	assert.Equal(t, StatusDelivered, o.Status)
}

func TestComputeTotalExact(t *testing.T) {
	o := &Order{Items: []Item{
		{Quantity: 3, UnitPriceCents: CentsFromFloat(19.99)},
		{Quantity: 1, UnitPriceCents: CentsFromFloat(999.99)},
		{Quantity: 1, UnitPriceCents: CentsFromFloat(0.01)},
	}}
	total := o.ComputeTotal()
	assert.Equal(t, int64(105997), total)
	assert.Equal(t, 1059.97, FloatFromCents(total))
}

func TestCentsRounding(t *testing.T) {
	assert.Equal(t, int64(1999), CentsFromFloat(19.99))
	assert.Equal(t, int64(10), CentsFromFloat(0.1))
	assert.Equal(t, int64(0), CentsFromFloat(0))
}
