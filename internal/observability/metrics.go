package observability

import "github.com/prometheus/client_golang/prometheus"

// Persistence-layer collectors. Labels are bounded: operation names and
// entity types come from code, never from request data.
var (
	// RetryAttempts counts failed attempts that were followed by a retry.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_retry_attempts_total",
			Help: "Failed persistence attempts that were retried.",
		},
		[]string{"operation"},
	)

	// RetryExhausted counts operations that failed on their final attempt.
	RetryExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_retry_exhausted_total",
			Help: "Persistence operations that failed after the last allowed attempt.",
		},
		[]string{"operation"},
	)

	// Transactions counts units of work by terminal state
	// (committed, rolled_back, begin_failed, commit_failed).
	Transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_transactions_total",
			Help: "Units of work by outcome.",
		},
		[]string{"entity_type", "outcome"},
	)

	// EventsPublished counts post-commit domain event deliveries by result.
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events published after commit, by type and result.",
		},
		[]string{"type", "result"},
	)

	// CacheInvalidations counts cache keys removed per entity type.
	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cache invalidations by entity type.",
		},
		[]string{"entity_type"},
	)
)

func init() {
	prometheus.MustRegister(RetryAttempts, RetryExhausted, Transactions, EventsPublished, CacheInvalidations)
}
