package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulserelay_store_documents_appended_total",
		Help: "Documents appended to the store, by collection.",
	}, []string{"collection"})

	documentsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulserelay_store_documents_deleted_total",
		Help: "Documents deleted from the store, by collection.",
	}, []string{"collection"})

	subscriptionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulserelay_store_subscriptions_open",
		Help: "Change subscriptions currently registered.",
	})
)
