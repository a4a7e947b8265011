// Package metrics holds the Prometheus instruments for the realtime layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	RelayDelivered = "delivered"
	RelayDropped   = "dropped"

	AdmissionAccepted = "accepted"
)

var (
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Admitted connections currently attached to the hub",
		},
		[]string{"transport"}, // "websocket", "polling"
	)

	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_admissions_total",
			Help: "Connection attempts by admission result",
		},
		[]string{"result"}, // "accepted" or the rejection reason
	)

	PresenceEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_presence_entries",
			Help: "Entries in the presence registry",
		},
	)

	RelayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_total",
			Help: "Direct message relays by outcome",
		},
		[]string{"outcome"},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_rooms_active",
			Help: "Rooms with at least one member",
		},
	)

	RoomBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_room_broadcasts_total",
			Help: "Frames fanned out to rooms",
		},
	)

	InvalidFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_invalid_frames_total",
			Help: "Inbound frames rejected at decode or validation",
		},
		[]string{"event"},
	)

	SlowClientsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_slow_clients_total",
			Help: "Clients dropped because their outbound queue was full",
		},
	)
)

func RecordAdmission(result string) {
	AdmissionsTotal.WithLabelValues(result).Inc()
}

func RecordRelay(delivered bool) {
	if delivered {
		RelayTotal.WithLabelValues(RelayDelivered).Inc()
		return
	}
	RelayTotal.WithLabelValues(RelayDropped).Inc()
}

func RecordInvalidFrame(event string) {
	if event == "" {
		event = "unknown"
	}
	InvalidFramesTotal.WithLabelValues(event).Inc()
}
