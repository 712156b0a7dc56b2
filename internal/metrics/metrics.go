// Package metrics holds the Prometheus collectors exported by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by the counters below.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultSent   = "sent"
	ResultFailed = "failed"
)

var (
	// PollCycles counts completed poll cycles.
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anilife_poll_cycles_total",
		Help: "Total number of completed subscription poll cycles",
	})

	// PollCycleDuration observes how long a full poll cycle took.
	PollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anilife_poll_cycle_duration_seconds",
		Help:    "Duration of a subscription poll cycle in seconds",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})

	// SubscriptionsProcessed counts per-subscription outcomes inside poll cycles.
	SubscriptionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anilife_poll_subscriptions_total",
		Help: "Subscriptions processed by poll cycles, by outcome",
	}, []string{"result"})

	// SearchRequests counts catalog search calls by outcome.
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anilife_catalog_search_requests_total",
		Help: "Catalog search requests, by outcome",
	}, []string{"result"})

	// Notifications counts new-release notifications by delivery outcome.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anilife_notifications_total",
		Help: "New release notifications, by delivery outcome",
	}, []string{"result"})

	// SessionEvictions counts chats dropped from the search result cache.
	SessionEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anilife_session_evictions_total",
		Help: "Chats evicted from the search result cache",
	})
)
