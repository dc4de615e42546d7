package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionsMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "sessions",
			Name:      "matched_total",
			Help:      "Endpoint pairs correlated into a session.",
		},
	)
	sessionMatchTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "sessions",
			Name:      "match_timeouts_total",
			Help:      "Endpoints discarded with only one channel open at the deadline.",
		},
	)
	handshakeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "sessions",
			Name:      "handshake_failures_total",
			Help:      "Descriptor exchanges that failed or timed out.",
		},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Frames written, by channel.",
		},
		[]string{"channel"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Frames read, by channel.",
		},
		[]string{"channel"},
	)
	relayForwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "relay",
			Name:      "forwards_total",
			Help:      "Frames forwarded upstream, by relay mode.",
		},
		[]string{"mode"},
	)
	exclusivityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "padlink",
			Subsystem: "relay",
			Name:      "exclusivity_rejections_total",
			Help:      "Peripheral connections refused while one is attached.",
		},
	)
	frameLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "padlink",
			Subsystem: "frames",
			Name:      "latency_seconds",
			Help:      "One-way frame latency from sampled send timestamps.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsMatched, sessionMatchTimeouts, handshakeFailures,
			framesSent, framesReceived,
			relayForwards, exclusivityRejections,
			frameLatency,
		)
	})
}

func SessionMatched() {
	RegisterMetrics()
	sessionsMatched.Inc()
}

func SessionMatchTimeout() {
	RegisterMetrics()
	sessionMatchTimeouts.Inc()
}

func HandshakeFailed() {
	RegisterMetrics()
	handshakeFailures.Inc()
}

func FrameSent(channel string) {
	RegisterMetrics()
	framesSent.WithLabelValues(channel).Inc()
}

func FrameReceived(channel string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(channel).Inc()
}

func RelayForwarded(mode string) {
	RegisterMetrics()
	relayForwards.WithLabelValues(mode).Inc()
}

func ExclusivityRejected() {
	RegisterMetrics()
	exclusivityRejections.Inc()
}

func ObserveFrameLatency(d time.Duration) {
	RegisterMetrics()
	frameLatency.Observe(d.Seconds())
}
