package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huroof",
		Subsystem: "session",
		Name:      "mutations_total",
		Help:      "Committed session mutations.",
	})
	persistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huroof",
		Subsystem: "session",
		Name:      "persist_failures_total",
		Help:      "Session writes that failed to reach durable storage.",
	})
	cachedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huroof",
		Subsystem: "session",
		Name:      "cached",
		Help:      "Sessions currently held in memory.",
	})
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huroof",
		Subsystem: "session",
		Name:      "evictions_total",
		Help:      "Idle sessions dropped from memory.",
	})
)
