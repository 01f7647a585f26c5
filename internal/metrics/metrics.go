// Package metrics exposes the gateway counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tk10x_tcp_connections_total",
		Help: "Accepted TCP connections",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tk10x_tcp_connections_active",
		Help: "Currently open TCP connections",
	})
	FramesRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_frames_received_total",
		Help: "Complete frames received per dialect",
	}, []string{"dialect"})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_frames_dropped_total",
		Help: "Frames dropped before decoding",
	}, []string{"reason"})
	AcksSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_acks_sent_total",
		Help: "Acknowledgments written back",
	}, []string{"kind"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_decode_errors_total",
		Help: "Frames that produced no record",
	}, []string{"dialect", "reason"})
	EventsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_events_saved_total",
		Help: "Events inserted per status code",
	}, []string{"status"})
	RejectedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_records_rejected_total",
		Help: "Decoded records rejected before synthesis",
	}, []string{"reason"})
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_store_errors_total",
		Help: "Storage failures",
	}, []string{"op"})
	ForwardDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tk10x_forward_dropped_total",
		Help: "Events the forwarder could not deliver",
	}, []string{"sink"})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tk10x_decode_latency_seconds",
		Help:    "Time from complete frame to synthesized events",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// NewServer returns the HTTP server for /metrics and /healthz. A non-nil api
// handler is mounted under /api/.
func NewServer(addr string, api http.Handler) *http.Server {
	mux := http.NewServeMux()
	if api != nil {
		mux.Handle("/api/", api)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown stops srv, waiting at most five seconds.
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
