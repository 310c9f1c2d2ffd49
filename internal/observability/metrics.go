package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledgerlink"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	peerFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "frames_total",
			Help:      "Peer frames by direction and message type.",
		},
		[]string{"direction", "type"},
	)
	peerBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "bytes_total",
			Help:      "Peer wire bytes by direction.",
		},
		[]string{"direction"},
	)
	peerPunishments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "punishments_total",
			Help:      "Protocol violations charged to peers.",
		},
		[]string{"kind"},
	)
	peerDetaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "detaches_total",
			Help:      "Peer teardowns by cause.",
		},
		[]string{"cause"},
	)
	peerPhases = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "connections",
			Help:      "Peer connections by lifecycle phase.",
		},
		[]string{"phase"},
	)
	handshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "peer",
			Name:      "handshake_duration_seconds",
			Help:      "Time from connection start to accepted hello.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	relaySuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "relay_suppressed_total",
			Help:      "Relayed messages dropped as already seen.",
		},
		[]string{"type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			peerFrames,
			peerBytes,
			peerPunishments,
			peerDetaches,
			peerPhases,
			handshakeDuration,
			relaySuppressed,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordPeerFrame counts one frame of n wire bytes. direction is "in" or "out".
func RecordPeerFrame(direction string, messageType uint32, n int) {
	RegisterMetrics()
	peerFrames.WithLabelValues(direction, strconv.FormatUint(uint64(messageType), 10)).Inc()
	peerBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordPunishment(kind string) {
	RegisterMetrics()
	peerPunishments.WithLabelValues(kind).Inc()
}

func RecordDetach(cause string) {
	RegisterMetrics()
	peerDetaches.WithLabelValues(cause).Inc()
}

// RecordPhaseChange moves one connection between phase gauges. An empty from
// only increments to.
func RecordPhaseChange(from, to string) {
	RegisterMetrics()
	if from != "" {
		peerPhases.WithLabelValues(from).Dec()
	}
	if to != "" {
		peerPhases.WithLabelValues(to).Inc()
	}
}

func RecordHandshake(duration time.Duration) {
	RegisterMetrics()
	handshakeDuration.Observe(duration.Seconds())
}

func RecordRelaySuppressed(messageType uint32) {
	RegisterMetrics()
	relaySuppressed.WithLabelValues(strconv.FormatUint(uint64(messageType), 10)).Inc()
}
