package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricRequests counts the handled requests by operation and status code.
const MetricRequests = "requests_total"

func newRequestCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minisql",
			Subsystem: "server",
			Name:      MetricRequests,
			Help:      "Requests handled by operation and HTTP status.",
		},
		[]string{"operation", "status"},
	)
}

// Register exposes the request counter on the registerer.
func (s *Server) Register(reg prometheus.Registerer) error {
	return reg.Register(s.requests)
}

func (s *Server) observe(op string, status int) {
	if op == "" {
		op = "unknown"
	}

	s.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}
