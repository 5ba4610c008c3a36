// Package metrics provides Prometheus instrumentation for the Guftagu
// services. It exposes gauges for presence and pool sizes, counters for
// matching and moderation throughput, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guftagu_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts relayed chat messages, labeled by outcome:
	// "sent", "received", or "blocked".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guftagu_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// MessageLatency records message relay latency in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "guftagu_message_latency_seconds",
		Help:    "Message relay latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// WaitingPoolSize tracks the current number of users waiting for a match.
	WaitingPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guftagu_waiting_pool_size",
		Help: "Current number of users in the waiting pool",
	})

	// MatchesFormed counts pairings formed by the matcher.
	MatchesFormed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guftagu_matches_formed_total",
		Help: "Total number of pairings formed",
	})

	// PairedUsers tracks how many connected users are currently inside an
	// active chat session. Each wsserver counts its own users, so summing
	// the gauge across servers counts participants, not sessions.
	PairedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "guftagu_paired_users",
		Help: "Connected users currently in an active chat session on this server",
	})

	// ReportsTotal counts reports filed, labeled by outcome:
	// "recorded" or "suspended" (the report that tripped the threshold).
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guftagu_reports_total",
		Help: "Total number of reports filed",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		MessageLatency,
		WaitingPoolSize,
		MatchesFormed,
		PairedUsers,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
