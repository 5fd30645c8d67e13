package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the resolution pipeline. Registered once on the default
// registry; the server exposes them at /metrics.
var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procgraph",
		Name:      "decisions_total",
		Help:      "Merge decisions by outcome.",
	}, []string{"outcome", "entity_type"})

	UpsertRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "procgraph",
		Name:      "upsert_retries_total",
		Help:      "Optimistic commit attempts that hit a version conflict and were retried.",
	})

	EmbedderDegradations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "procgraph",
		Name:      "embedder_degradations_total",
		Help:      "Candidates resolved alias-only because the embedding service failed.",
	})

	DuplicateFragments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "procgraph",
		Name:      "duplicate_fragments_total",
		Help:      "Fragments skipped because an identical text hash already existed.",
	})

	OutcomeReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "procgraph",
		Name:      "outcome_replays_total",
		Help:      "Candidates answered from the recorded outcome without touching the graph.",
	})

	OpenReviews = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procgraph",
		Name:      "open_reviews",
		Help:      "Review records currently waiting for a human answer.",
	}, []string{"kind"})
)
