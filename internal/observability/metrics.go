package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	syncPublishesTotal    *prometheus.CounterVec
	syncDocumentsApplied  prometheus.Counter
	syncMalformedPayloads prometheus.Counter
	syncEventsDropped     prometheus.Counter
	syncDroppedMutations  prometheus.Counter
	syncConnectionState   prometheus.Gauge
	chatClientsConnected  prometheus.Gauge
	requestsTotal         *prometheus.CounterVec
	requestLatencySeconds *prometheus.HistogramVec
	requestErrorsTotal    *prometheus.CounterVec
	videoLookupsTotal     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the
// gateway. Safe to call from any accessor; registration happens once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		syncPublishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_sync_publishes_total",
			Help: "Retained document publishes attempted against the broker, by result.",
		}, []string{"result"})

		syncDocumentsApplied = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sync_documents_applied_total",
			Help: "Room document payloads applied to local state.",
		})

		syncMalformedPayloads = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sync_malformed_payloads_total",
			Help: "Room payloads discarded because they failed decoding or schema validation.",
		})

		syncEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sync_events_dropped_total",
			Help: "Broker events dropped because the reconciliation loop was not keeping up.",
		})

		syncDroppedMutations = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sync_dropped_mutations_total",
			Help: "Local mutations dropped because no room was joined or the publish failed.",
		})

		syncConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_sync_connection_state",
			Help: "Broker connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 error).",
		})

		chatClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_chat_clients_connected",
			Help: "UI websocket clients currently attached to the gateway.",
		})

		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		requestLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchparty_request_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		requestErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_request_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		videoLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_video_lookups_total",
			Help: "Video metadata lookups, by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			syncPublishesTotal,
			syncDocumentsApplied,
			syncMalformedPayloads,
			syncEventsDropped,
			syncDroppedMutations,
			syncConnectionState,
			chatClientsConnected,
			requestsTotal,
			requestLatencySeconds,
			requestErrorsTotal,
			videoLookupsTotal,
		)
	})
}

// SyncPublishes exposes the publish outcome counter.
func SyncPublishes() *prometheus.CounterVec {
	RegisterMetrics()
	return syncPublishesTotal
}

// SyncDocumentsApplied exposes the applied-document counter.
func SyncDocumentsApplied() prometheus.Counter {
	RegisterMetrics()
	return syncDocumentsApplied
}

// SyncMalformedPayloads exposes the discarded-payload counter.
func SyncMalformedPayloads() prometheus.Counter {
	RegisterMetrics()
	return syncMalformedPayloads
}

// SyncEventsDropped exposes the dropped broker event counter.
func SyncEventsDropped() prometheus.Counter {
	RegisterMetrics()
	return syncEventsDropped
}

// SyncDroppedMutations exposes the dropped local mutation counter.
func SyncDroppedMutations() prometheus.Counter {
	RegisterMetrics()
	return syncDroppedMutations
}

// SyncConnectionState exposes the connection state gauge.
func SyncConnectionState() prometheus.Gauge {
	RegisterMetrics()
	return syncConnectionState
}

// ChatClientsConnected exposes the attached websocket client gauge.
func ChatClientsConnected() prometheus.Gauge {
	RegisterMetrics()
	return chatClientsConnected
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// RequestLatency exposes the latency histogram for API requests.
func RequestLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return requestLatencySeconds
}

// RequestErrors exposes the counter for API error responses.
func RequestErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return requestErrorsTotal
}

// VideoLookups exposes the video lookup outcome counter.
func VideoLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return videoLookupsTotal
}
