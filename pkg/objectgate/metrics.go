package objectgate

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters for access decisions and object streaming
type Metrics struct {
	accessDecisions    *prometheus.CounterVec
	membershipFailures prometheus.Counter
	streamResponses    *prometheus.CounterVec
	bytesStreamed      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "objectgate_access_decisions_total",
			Help: "Total number of access decisions by requested permission and result",
		}, []string{"permission", "result"}),
		membershipFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objectgate_membership_check_failures_total",
			Help: "Total number of membership lookups that failed and were treated as non-membership",
		}),
		streamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "objectgate_stream_responses_total",
			Help: "Total number of object stream responses by status code",
		}, []string{"status"}),
		bytesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objectgate_bytes_streamed_total",
			Help: "Total number of object bytes written to clients",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.accessDecisions, m.membershipFailures, m.streamResponses, m.bytesStreamed)
	}
	return m
}

func (m *Metrics) observeDecision(permission Permission, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.accessDecisions.WithLabelValues(string(permission), result).Inc()
}

func (m *Metrics) observeMembershipFailure() {
	if m == nil {
		return
	}
	m.membershipFailures.Inc()
}

func (m *Metrics) observeStream(status int, written int64) {
	if m == nil {
		return
	}
	m.streamResponses.WithLabelValues(strconv.Itoa(status)).Inc()
	if written > 0 {
		m.bytesStreamed.Add(float64(written))
	}
}
