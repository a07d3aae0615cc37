package fabric

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/internal/metrics"
)

// newBreaker builds the per-peer circuit breaker. The evaluation window is
// count-based: counts reset every openStateSeconds while closed, failures
// start tripping once minCalls have been observed and the failure rate
// reaches the threshold. Half-open admits halfOpenCalls probes.
func newBreaker(peer string, cfg config.BreakerConfig, log *slog.Logger) *gobreaker.CircuitBreaker {
	cfg = cfg.WithDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        peer,
		MaxRequests: uint32(cfg.HalfOpenCalls),
		Interval:    time.Duration(cfg.OpenStateSeconds) * time.Second,
		Timeout:     time.Duration(cfg.OpenStateSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinCalls) {
				return false
			}
			rate := float64(counts.TotalFailures) / float64(counts.Requests)
			return rate >= cfg.FailureRateThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
			log.Info("circuit breaker state change",
				"peer", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// breakerError maps gobreaker sentinel errors to the fast-fail
// classification; other errors pass through unchanged.
func breakerError(peer string, err error) error {
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return errs.Newf(errs.KindCircuitOpen, "circuit open for %s", peer)
	default:
		return err
	}
}
