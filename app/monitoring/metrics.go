package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "payments",
		Name:      "transactions_created_total",
		Help:      "Ledger rows created at checkout, by provider.",
	}, []string{"provider"})

	TransitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "payments",
		Name:      "transitions_applied_total",
		Help:      "Applied status transitions, by target status.",
	}, []string{"status"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "payments",
		Name:      "webhooks_received_total",
		Help:      "Inbound provider webhooks, by provider and outcome.",
	}, []string{"provider", "outcome"})

	NotifyDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketing",
		Subsystem: "payments",
		Name:      "notify_dispatches_total",
		Help:      "Audit sink deliveries, by outcome.",
	}, []string{"outcome"})
)
