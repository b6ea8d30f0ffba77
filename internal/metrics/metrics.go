// Package metrics exports pipeline counters to Prometheus and appends
// per-pass counter rows to a tabular CSV log.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vdp-1/cubesat-telemetry/internal/anomaly"
	"github.com/vdp-1/cubesat-telemetry/internal/ingest"
)

var (
	// PacketsProcessed counts records decoded, validated and persisted.
	PacketsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_packets_processed_total",
			Help: "Total number of telemetry packets processed and persisted",
		},
	)

	// FramingErrors counts records dropped for a bad magic marker.
	FramingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_framing_errors_total",
			Help: "Total number of records dropped due to framing errors",
		},
	)

	// IntegrityFailures counts records dropped for a checksum mismatch.
	IntegrityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_integrity_failures_total",
			Help: "Total number of records dropped due to checksum mismatches",
		},
	)

	// MissingPackets counts ids skipped over by id gaps.
	MissingPackets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_missing_packets_total",
			Help: "Total number of packet ids missing from the stream",
		},
	)

	// FlaggedPackets counts persisted packets carrying the aggregate
	// anomaly flag.
	FlaggedPackets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_flagged_packets_total",
			Help: "Total number of persisted packets flagged by validation",
		},
	)

	// BytesConsumed counts stream bytes advanced past by the reader.
	BytesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_stream_bytes_consumed_total",
			Help: "Total number of telemetry stream bytes consumed",
		},
	)

	// PacketsEvaluated counts packets examined by the anomaly engine.
	PacketsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_anomaly_packets_evaluated_total",
			Help: "Total number of packets evaluated by the anomaly engine",
		},
	)

	// AnomaliesDetected counts anomaly records found by the engine.
	AnomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_anomalies_detected_total",
			Help: "Total number of anomalies detected by the rule engine",
		},
	)
)

// ObserveIngestPass adds one reader pass to the Prometheus counters.
func ObserveIngestPass(m ingest.PassMetrics) {
	PacketsProcessed.Add(float64(m.Processed))
	FramingErrors.Add(float64(m.FramingErrors))
	IntegrityFailures.Add(float64(m.IntegrityFailures))
	MissingPackets.Add(float64(m.MissingPackets))
	FlaggedPackets.Add(float64(m.Flagged))
	BytesConsumed.Add(float64(m.BytesConsumed))
}

// ObserveEnginePass adds one anomaly engine pass to the Prometheus counters.
func ObserveEnginePass(s anomaly.PassStats) {
	PacketsEvaluated.Add(float64(s.Evaluated))
	AnomaliesDetected.Add(float64(s.Detected))
}
