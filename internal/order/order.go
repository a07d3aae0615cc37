// Package order implements the order domain: the status and saga state
// machines, persistence, and the OrderService handlers.
package order

import (
	"math"
	"time"

	"github.com/poc/grpc-services/internal/errs"
)

// Status is the externally visible order state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
)

// SagaState tracks the creation saga for recovery after a crash.
type SagaState string

const (
	SagaNotStarted    SagaState = "NOT_STARTED"
	SagaInProgress    SagaState = "IN_PROGRESS"
	SagaUserValidated SagaState = "USER_VALIDATED"
	SagaCompleted     SagaState = "COMPLETED"
	SagaCompensating  SagaState = "COMPENSATING"
	SagaFailed        SagaState = "FAILED"
)

// statusTransitions is the authoritative transition table. DELIVERED and
// CANCELLED are sinks; FAILED may re-enter PROCESSING.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusFailed},
	StatusShipped:    {StatusDelivered},
	StatusFailed:     {StatusProcessing},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ValidStatus reports whether s names a known status.
func ValidStatus(s Status) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether the move from s to target is allowed.
// Re-asserting the current status is a no-op and always allowed.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Item is one order line. Prices are held in cents so totals are exact.
type Item struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int32  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// Order is the persisted aggregate. In-flight copies are values; the store
// owns the authoritative record.
type Order struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	SagaState       SagaState `json:"saga_state"`
	Items           []Item    `json:"items"`
	TotalCents      int64     `json:"total_cents"`
	ShippingAddress string    `json:"shipping_address,omitempty"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ComputeTotal sums quantity times unit price across all items.
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, it := range o.Items {
		total += int64(it.Quantity) * it.UnitPriceCents
	}
	return total
}

// Transition moves the order to target after consulting the table.
func (o *Order) Transition(target Status) error {
	if !ValidStatus(target) {
		return errs.Newf(errs.KindInvalidInput, "unknown order status %q", target)
	}
	if !o.Status.CanTransitionTo(target) {
		return errs.Newf(errs.KindInvalidTransition, "cannot move order from %s to %s", o.Status, target)
	}
	o.Status = target
	return nil
}

// CentsFromFloat converts a wire-format price to cents, rounding half away
// from zero.
func CentsFromFloat(v float64) int64 {
	return int64(math.Round(v * 100))
}

// FloatFromCents converts cents back to the wire format.
func FloatFromCents(c int64) float64 {
	return float64(c) / 100
}
