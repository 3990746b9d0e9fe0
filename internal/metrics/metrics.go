// Package metrics provides Prometheus metrics for the bridge daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Frame metrics
	framesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawcontrol_frames_sent_total",
			Help: "Total frames written to the socket, by type",
		},
		[]string{"type"},
	)

	framesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawcontrol_frames_received_total",
			Help: "Total frames read from the socket, by type",
		},
		[]string{"type"},
	)

	framesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcontrol_frames_dropped_total",
			Help: "Frames dropped because the session was not connected",
		},
	)

	protocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcontrol_protocol_errors_total",
			Help: "Inbound frames that failed to parse or had unknown types",
		},
	)

	// Connection metrics
	reconnectsScheduledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcontrol_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a connection loss",
		},
	)

	connectedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawcontrol_connected",
			Help: "1 while the session is connected, 0 otherwise",
		},
	)

	// Request/response metrics
	requestsInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawcontrol_requests_inflight",
			Help: "Pending request/response exchanges",
		},
	)

	requestTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcontrol_request_timeouts_total",
			Help: "Requests that expired without a matching response",
		},
	)

	// Sync metrics
	syncOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clawcontrol_sync_operations_total",
			Help: "File sync operations, by action and origin",
		},
		[]string{"action", "origin"},
	)

	echoesSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcontrol_echoes_suppressed_total",
			Help: "Watch events discarded as echoes of remote writes",
		},
	)

	watchEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clawcontrol_watch_events_total",
			Help: "Raw document events received from the filesystem watcher",
		},
	)

	snapshotFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clawcontrol_snapshot_files",
			Help: "Number of documents in the last snapshot scan",
		},
	)
)

// RecordFrameSent records an outbound frame.
func RecordFrameSent(frameType string) {
	framesSentTotal.WithLabelValues(frameType).Inc()
}

// RecordFrameReceived records an inbound frame.
func RecordFrameReceived(frameType string) {
	framesReceivedTotal.WithLabelValues(frameType).Inc()
}

// RecordFrameDropped records a frame dropped while disconnected.
func RecordFrameDropped() {
	framesDroppedTotal.Inc()
}

// RecordProtocolError records a malformed or unrecognized inbound frame.
func RecordProtocolError() {
	protocolErrorsTotal.Inc()
}

// RecordReconnectScheduled records a scheduled reconnect attempt.
func RecordReconnectScheduled() {
	reconnectsScheduledTotal.Inc()
}

// SetConnected records the current connection state.
func SetConnected(connected bool) {
	if connected {
		connectedGauge.Set(1)
	} else {
		connectedGauge.Set(0)
	}
}

// RequestStarted records a new pending request.
func RequestStarted() {
	requestsInflight.Inc()
}

// RequestFinished records a resolved, failed, or expired request.
func RequestFinished() {
	requestsInflight.Dec()
}

// RecordRequestTimeout records a request that hit its deadline.
func RecordRequestTimeout() {
	requestTimeoutsTotal.Inc()
}

// RecordSyncOp records a file sync operation. Origin is "local" or "remote".
func RecordSyncOp(action, origin string) {
	syncOpsTotal.WithLabelValues(action, origin).Inc()
}

// RecordEchoSuppressed records a watch event discarded as an echo.
func RecordEchoSuppressed() {
	echoesSuppressedTotal.Inc()
}

// RecordWatchEvent records a raw watcher event for a document path.
func RecordWatchEvent() {
	watchEventsTotal.Inc()
}

// SetSnapshotFiles records the size of the last snapshot scan.
func SetSnapshotFiles(n int) {
	snapshotFiles.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics HTTP server on the given address. Blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
