package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conversations",
		Name:      "deliveries_total",
		Help:      "Pushes to connected clients by result.",
	}, []string{"result"})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "conversations",
		Name:      "evictions_total",
		Help:      "Registry entries evicted after a failed push.",
	})

	registryConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "conversations",
		Name:      "registry_connections",
		Help:      "Open push channels.",
	})
)
