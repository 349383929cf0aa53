package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hms_http_requests_total",
			Help: "Total number of HTTP requests processed by the gateway.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hms_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hms_ws_active_connections",
			Help: "Number of active downstream websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hms_ws_events_total",
			Help: "Total number of downstream websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hms_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	upstreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hms_upstream_socket_events_total",
			Help: "Socket events exchanged with the hospital backend.",
		},
		[]string{"direction", "event"},
	)
	backendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hms_backend_call_duration_seconds",
			Help:    "Latency of REST calls to the hospital backend.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
	sendOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hms_message_send_outcomes_total",
			Help: "Optimistic message sends by final state.",
		},
		[]string{"state"},
	)
	alertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hms_notification_alerts_total",
			Help: "Audio alerts requested for pushed notifications.",
		},
	)
	openSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hms_open_sessions",
			Help: "Number of live staff sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		upstreamEventsTotal,
		backendCallDuration,
		sendOutcomesTotal,
		alertsTotal,
		openSessions,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

// IncUpstreamEvent counts a socket event; direction is "in" or "out".
func IncUpstreamEvent(direction, event string) {
	upstreamEventsTotal.WithLabelValues(direction, event).Inc()
}

// ObserveBackendCall records one REST call. Status 0 means transport failure.
func ObserveBackendCall(route string, status int, elapsed time.Duration) {
	backendCallDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func IncSendOutcome(state string) {
	sendOutcomesTotal.WithLabelValues(state).Inc()
}

func IncAlert() {
	alertsTotal.Inc()
}

func SetOpenSessions(n int) {
	openSessions.Set(float64(n))
}
