package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	MessagesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_messages_total",
			Help: "Total number of inbound webhook messages by result",
		},
		[]string{"result"}, // ok, duplicate, rejected, failed
	)
	StatusUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_status_updates_total",
			Help: "Total number of delivery-status updates processed",
		},
	)
	AutomationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_executions_total",
			Help: "Total number of automation rule executions by trigger",
		},
		[]string{"trigger"},
	)
	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inbound_message_processing_seconds",
			Help:    "Duration of per-message ingestion in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func InitMetrics() {
	for _, c := range []prometheus.Collector{MessagesIngested, StatusUpdates, AutomationRuns, IngestDuration} {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msg("Failed to register metric")
		}
	}
}
