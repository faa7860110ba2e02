package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huroof_events_published_total",
		Help: "Broadcasts written to the event stream.",
	})
	publishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huroof_events_publish_failures_total",
		Help: "Broadcasts the event stream rejected.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huroof_events_dropped_total",
		Help: "Broadcasts dropped because the sink queue was full.",
	})
)
