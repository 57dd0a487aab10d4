// Package metrics exposes the counters referenced by spec §8's testable
// properties (per-source rx_packets/rx_errors, proto_unknown_seqno,
// channel_set_slow) as Prometheus metrics via client_golang, scraped
// alongside the HTTP surface. proto_unknown_seqno is registered but nothing
// increments it: the protocol engine only logs a report with an unknown
// seqno.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RxPackets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kismet",
		Subsystem: "datasource",
		Name:      "rx_packets_total",
		Help:      "Data/json reports received, per source, including paused drops and chain overflows.",
	}, []string{"source_uuid"})

	RxErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kismet",
		Subsystem: "datasource",
		Name:      "rx_errors_total",
		Help:      "Data/json reports that failed to process, per source.",
	}, []string{"source_uuid"})

	PausedDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kismet",
		Subsystem: "datasource",
		Name:      "paused_drops_total",
		Help:      "Reports dropped because the source was paused, per source.",
	}, []string{"source_uuid"})

	ProtoUnknownSeqno = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kismet",
		Subsystem: "protocol",
		Name:      "unknown_seqno_total",
		Help:      "Responses received with no matching in-flight transaction.",
	}, []string{"source_uuid"})

	ChannelSetSlow = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kismet",
		Subsystem: "hop",
		Name:      "channel_set_slow_total",
		Help:      "Ticks where a channel-set ack had not returned within the slow threshold.",
	}, []string{"source_uuid"})

	ReopenAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kismet",
		Subsystem: "datasource",
		Name:      "reopen_attempts_total",
		Help:      "Auto-reopen attempts, per source.",
	}, []string{"source_uuid"})
)

// MustRegister registers the collectors so cmd/ can register them once against a
// prometheus.Registerer without every component importing the global
// DefaultRegisterer directly.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(RxPackets, RxErrors, PausedDrops, ProtoUnknownSeqno, ChannelSetSlow, ReopenAttempts)
}
