package fabric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/errs"
	"github.com/poc/grpc-services/internal/metrics"
)

// bulkhead bounds the number of in-flight calls to a peer. Admission waits up
// to maxWait for a slot; over-limit callers fail fast.
type bulkhead struct {
	peer    string
	sem     *semaphore.Weighted
	maxWait time.Duration
}

func newBulkhead(peer string, cfg config.BulkheadConfig) *bulkhead {
	cfg = cfg.WithDefaults()
	return &bulkhead{
		peer:    peer,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		maxWait: time.Duration(cfg.MaxWaitMs) * time.Millisecond,
	}
}

// acquire blocks until a slot frees, the wait budget runs out, or the caller
// is cancelled. The returned release is idempotent-safe to call exactly once.
func (b *bulkhead) acquire(ctx context.Context) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if cause := ctx.Err(); cause != nil {
			if errors.Is(cause, context.DeadlineExceeded) {
				return nil, errs.Wrap(errs.KindRemoteDeadline,
					fmt.Sprintf("deadline expired before %s had capacity", b.peer), cause)
			}
			// Cancellation passes through; the transport edge maps it.
			return nil, cause
		}
		metrics.BulkheadRejections.WithLabelValues(b.peer).Inc()
		return nil, errs.Newf(errs.KindBulkheadFull, "no capacity for calls to %s", b.peer)
	}
	return func() { b.sem.Release(1) }, nil
}
