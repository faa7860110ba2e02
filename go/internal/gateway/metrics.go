package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huroof_gateway_open_connections",
		Help: "Open websocket connections, joined or not.",
	})
	registeredConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "huroof_gateway_registered_connections",
		Help: "Connections registered to a session, by role.",
	}, []string{"role"})
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huroof_gateway_messages_total",
		Help: "Client messages received, by type and outcome.",
	}, []string{"type", "outcome"})
	slowConsumersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huroof_gateway_slow_consumers_total",
		Help: "Connections closed because their send buffer was full.",
	})
	buzzerPressesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huroof_gateway_buzzer_presses_total",
		Help: "Buzzer presses, by result.",
	}, []string{"result"})
	graceRemovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huroof_gateway_grace_expiries_total",
		Help: "Grace periods that expired without a reconnect, by role.",
	}, []string{"role"})
	terminatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huroof_gateway_liveness_terminations_total",
		Help: "Connections closed for missing a liveness probe.",
	})
)
