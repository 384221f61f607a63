// Package metrics holds the Prometheus collectors for attendance attempts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Attempts        *prometheus.CounterVec
	GateRejections  *prometheus.CounterVec
	Verifications   *prometheus.CounterVec
	VerifyDuration  prometheus.Histogram
	ProbeCleanups   *prometheus.CounterVec
	ProbesReaped    prometheus.Counter
	RecordConflicts prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "attendance_attempts_total",
			Help:      "Attendance submissions by result.",
		}, []string{"result"}),
		GateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "eligibility_rejections_total",
			Help:      "Eligibility checks that failed, by reason.",
		}, []string{"reason"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "face_verifications_total",
			Help:      "Face match decisions by outcome.",
		}, []string{"outcome"}),
		VerifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faceattend",
			Name:      "face_verification_seconds",
			Help:      "Latency of face match decisions.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		ProbeCleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "probe_cleanups_total",
			Help:      "Probe deletions by result (deleted, deferred, failed).",
		}, []string{"result"}),
		ProbesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "probes_reaped_total",
			Help:      "Stale probes removed by the reaper.",
		}),
		RecordConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "attendance_write_conflicts_total",
			Help:      "Attendance writes rejected because the pair was already marked.",
		}),
	}
	reg.MustRegister(m.Attempts, m.GateRejections, m.Verifications, m.VerifyDuration,
		m.ProbeCleanups, m.ProbesReaped, m.RecordConflicts)
	return m
}

func (m *Metrics) Attempt(result string) {
	if m != nil {
		m.Attempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.GateRejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Verified(outcome string, took time.Duration) {
	if m != nil {
		m.Verifications.WithLabelValues(outcome).Inc()
		m.VerifyDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) ProbeCleanup(result string) {
	if m != nil {
		m.ProbeCleanups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Reaped(n int) {
	if m != nil && n > 0 {
		m.ProbesReaped.Add(float64(n))
	}
}

func (m *Metrics) Conflict() {
	if m != nil {
		m.RecordConflicts.Inc()
	}
}
