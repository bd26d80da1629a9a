package ringhost

import "github.com/prometheus/client_golang/prometheus"

var (
	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ringhost",
		Subsystem: "coordinator",
		Name:      "state",
		Help:      "Current coordinator state (see State constants)",
	}, []string{"session"})

	hostConfirmedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ringhost",
		Subsystem: "coordinator",
		Name:      "host_confirmed_bool",
		Help:      "Whether the session has a confirmed host",
	}, []string{"session"})

	roundsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringhost",
		Subsystem: "election",
		Name:      "rounds_total",
		Help:      "Election rounds by outcome",
	}, []string{"session", "outcome"})

	roundDurationHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ringhost",
		Subsystem: "election",
		Name:      "round_duration_seconds",
		Help:      "Duration of confirmed election rounds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"session"})

	unresponsiveCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringhost",
		Subsystem: "election",
		Name:      "unresponsive_peers_total",
		Help:      "Peers marked unresponsive during rounds",
	}, []string{"session"})

	malformedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringhost",
		Subsystem: "codec",
		Name:      "malformed_packets_total",
		Help:      "Inbound packets dropped as malformed or unknown",
	}, []string{"session"})
)

const (
	outcomeConfirmed = "confirmed"
	outcomeQuorum    = "quorum_failed"
	outcomeTimeout   = "timeout"
	outcomeChurn     = "churn"
	outcomeFallback  = "fallback"
)

func init() {
	prometheus.MustRegister(
		stateGauge,
		hostConfirmedGauge,
		roundsCounter,
		roundDurationHist,
		unresponsiveCounter,
		malformedCounter)
}
