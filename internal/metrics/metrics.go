package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Webhook metrics
	UpdatesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifybot_updates_received_total",
			Help: "Total number of inbound updates by classified kind",
		},
		[]string{"kind"},
	)

	MalformedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifybot_updates_malformed_total",
			Help: "Total number of inbound payloads that failed to parse",
		},
	)

	// Transport metrics
	TransportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifybot_transport_errors_total",
			Help: "Total number of failed Telegram API calls by method",
		},
		[]string{"method"},
	)

	// Store metrics
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifybot_store_errors_total",
			Help: "Total number of failed store operations by operation",
		},
		[]string{"op"},
	)

	AuditRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifybot_audit_rows_total",
			Help: "Total number of audit rows appended",
		},
	)

	ReconcileRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifybot_reconcile_duplicates_removed_total",
			Help: "Total number of duplicate subscriber rows collapsed by reconciliation",
		},
	)
)

func init() {
	prometheus.MustRegister(UpdatesReceived)
	prometheus.MustRegister(MalformedUpdates)
	prometheus.MustRegister(TransportErrors)
	prometheus.MustRegister(StoreErrors)
	prometheus.MustRegister(AuditRows)
	prometheus.MustRegister(ReconcileRemoved)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
