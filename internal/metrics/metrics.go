package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "impostor_relay"

var (
	// SlotsByState - число слотов в каждом состоянии
	SlotsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots",
			Help:      "Number of room slots by state",
		},
		[]string{"state"}, // empty/active/cooldown
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Total number of rooms created by the slot pool",
		},
	)

	// RoomsClosed считает закрытые комнаты по причине
	RoomsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_closed_total",
			Help:      "Total number of rooms torn down",
		},
		[]string{"reason"},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of phase transitions",
		},
		[]string{"phase"},
	)

	// Actions считает входящие действия игроков
	Actions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of client intents processed",
		},
		[]string{"type", "result"}, // result: ok или код ошибки
	)

	GamesEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_ended_total",
			Help:      "Total number of finished games",
		},
		[]string{"winner", "reason"},
	)

	// MessagesDropped - события, не поместившиеся в буфер клиента
	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of outbound events dropped on full client buffers",
		},
	)

	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open websocket connections",
		},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_sink_errors_total",
			Help:      "Total number of failed result sink calls",
		},
		[]string{"sink"},
	)
)

// RecordAction - удобная обертка над Actions
func RecordAction(kind, result string) {
	Actions.WithLabelValues(kind, result).Inc()
}

func RecordPhase(phase string) {
	PhaseTransitions.WithLabelValues(phase).Inc()
}
