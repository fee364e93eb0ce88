package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across every handler.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "iotflow",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// TelemetryPointsWrittenTotal counts points successfully written to the
// time-series store, by ingestion path.
var TelemetryPointsWrittenTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotflow",
		Subsystem: "telemetry",
		Name:      "points_written_total",
		Help:      "Total number of telemetry points written to the time-series store.",
	},
	[]string{"ingress"},
)

// TelemetryPointsRejectedTotal counts points rejected during normalization,
// by reason.
var TelemetryPointsRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotflow",
		Subsystem: "telemetry",
		Name:      "points_rejected_total",
		Help:      "Total number of telemetry points rejected during normalization.",
	},
	[]string{"reason"},
)

// TimeseriesWriteDuration tracks batch flush latency to the time-series store.
var TimeseriesWriteDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "iotflow",
		Subsystem: "timeseries",
		Name:      "write_duration_seconds",
		Help:      "Time-series batch write duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
)

// MQTTMessagesReceivedTotal counts inbound MQTT messages by topic kind.
var MQTTMessagesReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotflow",
		Subsystem: "mqtt",
		Name:      "messages_received_total",
		Help:      "Total number of MQTT messages received, by kind.",
	},
	[]string{"kind"},
)

// MQTTQueueDroppedTotal counts messages dropped from the bounded ingress
// queue under backpressure.
var MQTTQueueDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotflow",
		Subsystem: "mqtt",
		Name:      "queue_dropped_total",
		Help:      "Total number of MQTT messages dropped due to queue backpressure, by kind.",
	},
	[]string{"kind"},
)

// DeviceRegistrationsTotal counts registration attempts by outcome.
var DeviceRegistrationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotflow",
		Subsystem: "devices",
		Name:      "registrations_total",
		Help:      "Total number of device registration attempts, by outcome.",
	},
	[]string{"outcome"},
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter, by
// scope.
var RateLimitRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "iotflow",
		Subsystem: "identity",
		Name:      "ratelimit_rejections_total",
		Help:      "Total number of requests rejected by the rate limiter, by scope.",
	},
	[]string{"scope"},
)

// All returns IoTFlow's domain-specific collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		TelemetryPointsWrittenTotal,
		TelemetryPointsRejectedTotal,
		TimeseriesWriteDuration,
		MQTTMessagesReceivedTotal,
		MQTTQueueDroppedTotal,
		DeviceRegistrationsTotal,
		RateLimitRejectionsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
