package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/poc/grpc-services/internal/auth"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/internal/metrics"
)

const validateTimeout = 2 * time.Second

// UserValidator asks the identity peer whether a user may place orders.
type UserValidator interface {
	Validate(ctx context.Context, userID string) (bool, error)
}

// Saga drives order creation: persist PENDING, validate the user remotely,
// then confirm or compensate. Every state change is persisted before the
// next step, so a crash leaves the order recoverable by inspecting its saga
// state. Save conflicts (Aborted) propagate; the saga never retries them.
type Saga struct {
	repo      Repository
	validator UserValidator
	log       *slog.Logger
}

func NewSaga(repo Repository, validator UserValidator, log *slog.Logger) *Saga {
	return &Saga{repo: repo, validator: validator, log: log}
}

// Run executes the saga for a fully built, input-validated order. On success
// the order is CONFIRMED/COMPLETED; on a failed validation or an unreachable
// peer it is CANCELLED/FAILED and the classified error is returned.
func (s *Saga) Run(ctx context.Context, o *Order) error {
	o.Status = StatusPending
	o.SagaState = SagaNotStarted
	if err := s.repo.Create(ctx, o); err != nil {
		return err
	}

	if err := s.persistSagaState(ctx, o, SagaInProgress); err != nil {
		return err
	}

	valid, verr := s.validateUser(ctx, o.UserID)
	if verr == nil && valid {
		if err := s.persistSagaState(ctx, o, SagaUserValidated); err != nil {
			return err
		}
		o.Status = StatusConfirmed
		if err := s.persistSagaState(ctx, o, SagaCompleted); err != nil {
			return err
		}
		metrics.SagaOutcomes.WithLabelValues("completed").Inc()
		return nil
	}

	// Compensation path: either the user is not eligible or the peer could
	// not be consulted.
	if err := s.persistSagaState(ctx, o, SagaCompensating); err != nil {
		return err
	}
	o.Status = StatusCancelled
	if err := s.persistSagaState(ctx, o, SagaFailed); err != nil {
		return err
	}

	cause := verr
	if cause == nil {
		cause = errs.New(errs.KindPreconditionFailed, "user is not eligible for orders")
	}
	metrics.SagaOutcomes.WithLabelValues(string(errs.KindOf(cause))).Inc()
	s.log.Warn("order compensated",
		"order_id", o.ID,
		"user_id", o.UserID,
		"correlation_id", auth.CorrelationIDFrom(ctx),
		"cause", string(errs.KindOf(cause)),
	)
	return cause
}

func (s *Saga) validateUser(ctx context.Context, userID string) (bool, error) {
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return s.validator.Validate(vctx, userID)
}

func (s *Saga) persistSagaState(ctx context.Context, o *Order, state SagaState) error {
	o.SagaState = state
	return s.repo.Save(ctx, o)
}
