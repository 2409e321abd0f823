package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsync",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowsync",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowsync",
		Name:      "connected_clients",
		Help:      "Current number of WebSocket clients on this instance",
	})

	wsMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsync",
		Name:      "ws_messages_received_total",
		Help:      "Valid WebSocket messages accepted by the broadcaster",
	}, []string{"type"})

	wsMessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsync",
		Name:      "ws_messages_dropped_total",
		Help:      "Inbound frames dropped at the transport boundary",
	}, []string{"reason"})

	bridgePublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsync",
		Name:      "bridge_published_total",
		Help:      "Messages published onto the pub/sub bridge",
	})

	bridgeReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsync",
		Name:      "bridge_received_total",
		Help:      "Messages received from the pub/sub bridge",
	})

	bridgeDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowsync",
		Name:      "bridge_degraded",
		Help:      "1 while the bridge is in local-only degraded mode",
	})
)

func SetConnectedClients(n int)    { connectedClients.Set(float64(n)) }
func MessageReceived(kind string)  { wsMessagesReceived.WithLabelValues(kind).Inc() }
func MessageDropped(reason string) { wsMessagesDropped.WithLabelValues(reason).Inc() }
func BridgePublished()             { bridgePublished.Inc() }
func BridgeReceived()              { bridgeReceived.Inc() }

func SetBridgeDegraded(degraded bool) {
	if degraded {
		bridgeDegraded.Set(1)
		return
	}
	bridgeDegraded.Set(0)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
