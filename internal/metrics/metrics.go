// Package metrics holds the process-wide Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_auth_failures_total",
		Help: "Requests rejected by the server security chain, by cause.",
	}, []string{"cause"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_breaker_transitions_total",
		Help: "Circuit breaker state transitions, by peer and new state.",
	}, []string{"peer", "state"})

	BulkheadRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_bulkhead_rejections_total",
		Help: "Calls rejected because no bulkhead slot freed in time.",
	}, []string{"peer"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache hits, by cache name.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache misses, by cache name.",
	}, []string{"cache"})

	SagaOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_saga_outcomes_total",
		Help: "Order creation saga terminal outcomes.",
	}, []string{"outcome"})

	TokenMints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "client_token_mints_total",
		Help: "Service token mints performed by the client chain.",
	}, []string{"result"})
)
