package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ReservationsCommitted prometheus.Counter
	ReservationsRejected  *prometheus.CounterVec
	ChallengesIssued      prometheus.Counter
	ChallengeVerdicts     *prometheus.CounterVec
	DispatchFallbacks     prometheus.Counter
	ReservationDurationMs prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ReservationsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zeron_reservations_committed_total",
			Help: "Total number of share reservations committed",
		}),
		ReservationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zeron_reservations_rejected_total",
			Help: "Total number of share reservations rejected, by reason",
		}, []string{"reason"}),
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zeron_otp_challenges_issued_total",
			Help: "Total number of OTP challenges issued",
		}),
		ChallengeVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "zeron_otp_verifications_total",
			Help: "Total number of OTP verification attempts, by verdict",
		}, []string{"verdict"}),
		DispatchFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "zeron_otp_dispatch_fallbacks_total",
			Help: "Total number of OTP deliveries degraded to the operator record",
		}),
		ReservationDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "zeron_reservation_duration_ms",
			Help:    "Latency of share reservation commits in milliseconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}),
	}
}

func (m *Metrics) IncReservationCommitted() {
	if m == nil {
		return
	}
	m.ReservationsCommitted.Inc()
}

func (m *Metrics) IncReservationRejected(reason string) {
	if m == nil {
		return
	}
	m.ReservationsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncChallengeIssued() {
	if m == nil {
		return
	}
	m.ChallengesIssued.Inc()
}

func (m *Metrics) IncChallengeVerdict(verdict string) {
	if m == nil {
		return
	}
	m.ChallengeVerdicts.WithLabelValues(verdict).Inc()
}

func (m *Metrics) IncDispatchFallback() {
	if m == nil {
		return
	}
	m.DispatchFallbacks.Inc()
}
