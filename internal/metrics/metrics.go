// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chefbid"

var (
	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Order status transitions committed, by target status.",
	}, []string{"status"})

	BidsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "bids_placed_total",
		Help:      "Bids placed on open orders.",
	})

	ConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "conflict_retries_total",
		Help:      "Operations re-run after losing a concurrent-update race.",
	}, []string{"operation"})

	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "postings_total",
		Help:      "Ledger transactions appended, by type.",
	}, []string{"type"})

	CommissionSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "commission_skipped_total",
		Help:      "Settlements whose commission leg was skipped for lack of a platform wallet.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Events handed to the bus, by kind.",
	}, []string{"kind"})

	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Events the bus failed to publish, by kind.",
	}, []string{"kind"})

	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "connections",
		Help:      "Live websocket connections.",
	})

	GatewayDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "delivered_total",
		Help:      "Events enqueued to live connections.",
	})

	GatewayDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "dropped_total",
		Help:      "Events dropped because a connection's send queue was full.",
	})

	AlertsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "enqueued_total",
		Help:      "Alert tasks enqueued, by task type.",
	}, []string{"type"})
)
