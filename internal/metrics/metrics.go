// Package metrics holds the simulation's Prometheus collectors.
//
// Labels are bounded: pool names come from configuration and outcome/kind
// values are fixed enums. Owner tags are never used as labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "danmaku_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167},
	})

	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmaku_ticks_total",
		Help: "Simulation ticks executed",
	})

	liveBullets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "danmaku_live_bullets",
		Help: "Live bullets per pool",
	}, []string{"pool"})

	spawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmaku_spawns_total",
		Help: "Spawn requests by outcome",
	}, []string{"pool", "outcome"}) // Bounded: "ok", "dropped", "rejected"

	deathsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmaku_deaths_total",
		Help: "Bullets removed by cause",
	}, []string{"pool", "cause"})

	contactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danmaku_contacts_total",
		Help: "Collision reports by kind",
	}, []string{"pool", "kind"}) // Bounded: "hit", "graze", "target_hit"

	commandsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danmaku_commands_dropped_total",
		Help: "Script commands dropped because the command queue was full",
	})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// RecordTick records tick timing
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
	ticksTotal.Inc()
}

// SetLive updates the live gauge of one pool
func SetLive(pool string, n int) {
	liveBullets.WithLabelValues(pool).Set(float64(n))
}

// AddSpawns counts spawn outcomes; outcome must be "ok", "dropped" or "rejected"
func AddSpawns(pool, outcome string, n uint64) {
	if n > 0 {
		spawnsTotal.WithLabelValues(pool, outcome).Add(float64(n))
	}
}

// AddDeaths counts removed bullets by cause
func AddDeaths(pool, cause string, n uint64) {
	if n > 0 {
		deathsTotal.WithLabelValues(pool, cause).Add(float64(n))
	}
}

// AddContacts counts collision reports
func AddContacts(pool, kind string, n int) {
	if n > 0 {
		contactsTotal.WithLabelValues(pool, kind).Add(float64(n))
	}
}

// IncCommandsDropped counts a command rejected by the queue
func IncCommandsDropped() {
	commandsDropped.Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// RegisterEventLog exposes event log counters read at scrape time.
// Calling it twice is a no-op.
func RegisterEventLog(total, dropped func() uint64) {
	for _, c := range []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "event_log_total",
			Help: "Total events logged",
		}, func() float64 { return float64(total()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "event_log_dropped_total",
			Help: "Events dropped due to rate limiting or buffer full",
		}, func() float64 { return float64(dropped()) }),
	} {
		_ = prometheus.Register(c) // AlreadyRegisteredError on repeat
	}
}
