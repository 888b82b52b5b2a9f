// Package metrics holds the process-wide prometheus collectors shared by the
// engine, the replication layer and the transport.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics with bounded cardinality (no per-client labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vessel_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	})

	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vessel_clients_connected",
		Help: "Clients that completed the handshake",
	})

	vesselsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vessel_live_vessels",
		Help: "Spawned vessels in the world",
	})

	ownedVessels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vessel_owned_vessels",
		Help: "Entries in the ownership map",
	})

	messagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_messages_in_total",
		Help: "Decoded messages received, by type",
	}, []string{"type"})

	messagesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_messages_out_total",
		Help: "Messages queued for sending, by type",
	}, []string{"type"})

	bytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_bytes_out_total",
		Help: "Framed bytes queued for sending",
	})

	outboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_outbound_dropped_total",
		Help: "Droppable frames skipped because a client queue was full",
	})

	controlsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_controls_dropped_total",
		Help: "Remote controls that could not be applied",
	}, []string{"reason"}) // bounded: not_owner, entity_gone, not_ready, bad_control, unknown_client

	spawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_spawns_total",
		Help: "Vessels spawned",
	}, []string{"kind"}) // spawn, respawn

	spawnRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_spawn_retries_total",
		Help: "Ticks an entity waited for its vessel definition",
	})

	spawnAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_spawn_abandoned_total",
		Help: "Entities that gave up waiting for their definition",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_connection_rejected_total",
		Help: "Connections rejected before or during the handshake",
	}, []string{"reason"}) // bounded: max_clients, ip_limit, handshake, protocol, rate_limit, origin

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_event_log_total",
		Help: "Events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})
)

// RecordTick records tick timing.
func RecordTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// UpdateClients sets the connected-clients gauge.
func UpdateClients(n int) {
	clientsConnected.Set(float64(n))
}

// UpdateVessels sets the live and owned vessel gauges.
func UpdateVessels(live, owned int) {
	vesselsLive.Set(float64(live))
	ownedVessels.Set(float64(owned))
}

// RecordMessageIn counts a received message.
func RecordMessageIn(msgType string) {
	messagesIn.WithLabelValues(msgType).Inc()
}

// RecordMessageOut counts a queued message and its size.
func RecordMessageOut(msgType string, size int) {
	messagesOut.WithLabelValues(msgType).Inc()
	bytesOut.Add(float64(size))
}

// RecordOutboundDropped counts a skipped droppable frame.
func RecordOutboundDropped() {
	outboundDropped.Inc()
}

// RecordControlDropped counts a remote control that was not applied.
func RecordControlDropped(reason string) {
	controlsDropped.WithLabelValues(reason).Inc()
}

// RecordSpawn counts a spawn or respawn.
func RecordSpawn(respawn bool) {
	if respawn {
		spawns.WithLabelValues("respawn").Inc()
		return
	}
	spawns.WithLabelValues("spawn").Inc()
}

// RecordSpawnRetry counts one tick of waiting for a definition.
func RecordSpawnRetry() {
	spawnRetries.Inc()
}

// RecordSpawnAbandoned counts an abandoned spawn.
func RecordSpawnAbandoned() {
	spawnAbandoned.Inc()
}

// RecordConnectionRejected increments the rejection counter.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordEvent counts an event log entry, or a dropped one.
func RecordEvent(dropped bool) {
	if dropped {
		eventLogDropped.Inc()
		return
	}
	eventLogTotal.Inc()
}
