package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racehub_live_events_total",
			Help: "Live race events applied to boards, by event type",
		},
		[]string{"type"},
	)

	LiveEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racehub_live_events_rejected_total",
			Help: "Live race events dropped before reaching a board",
		},
		[]string{"reason"},
	)

	LivePositionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "racehub_live_positions_evicted_total",
			Help: "Live positions removed after going stale",
		},
	)

	LiveBoards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "racehub_live_boards",
			Help: "Races with an active live board",
		},
	)

	LeaderboardBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "racehub_leaderboard_broadcasts_total",
			Help: "Leaderboard snapshots pushed to stream subscribers",
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "racehub_stream_clients",
			Help: "Connected websocket stream clients",
		},
	)

	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "racehub_source_requests_total",
			Help: "Snapshot reads against the race source",
		},
		[]string{"resource", "outcome"},
	)
)
