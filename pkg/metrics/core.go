package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics records coordination outcomes across the domain services.
type CoreMetrics struct {
	reservationConflicts prometheus.Counter
	idempotentReplays    *prometheus.CounterVec
	rateLimitDenials     *prometheus.CounterVec
	ticketRedemptions    *prometheus.CounterVec
}

// NewCoreMetrics registers the core counters on the provided registerer.
// Passing nil yields a no-op recorder, which keeps tests and tools quiet.
func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	if reg == nil {
		return &CoreMetrics{}
	}
	reservationConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Reserve attempts rejected because another visitor held the item.",
	})
	idempotentReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Requests answered from a previously stored outcome.",
	}, []string{"scope"})
	rateLimitDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_denials_total",
		Help: "Requests rejected by the fixed-window limiter.",
	}, []string{"scope"})
	ticketRedemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_redemptions_total",
		Help: "Upload and preview ticket redemption attempts by outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(reservationConflicts, idempotentReplays, rateLimitDenials, ticketRedemptions)
	return &CoreMetrics{
		reservationConflicts: reservationConflicts,
		idempotentReplays:    idempotentReplays,
		rateLimitDenials:     rateLimitDenials,
		ticketRedemptions:    ticketRedemptions,
	}
}

// IncReservationConflict counts a reserve attempt losing to another holder.
func (c *CoreMetrics) IncReservationConflict() {
	if c == nil || c.reservationConflicts == nil {
		return
	}
	c.reservationConflicts.Inc()
}

// IncIdempotentReplay counts a stored outcome being served for the scope.
func (c *CoreMetrics) IncIdempotentReplay(scope string) {
	if c == nil || c.idempotentReplays == nil {
		return
	}
	c.idempotentReplays.WithLabelValues(normalizeLabel(scope)).Inc()
}

// IncRateLimitDenial counts a limiter rejection for the scope.
func (c *CoreMetrics) IncRateLimitDenial(scope string) {
	if c == nil || c.rateLimitDenials == nil {
		return
	}
	c.rateLimitDenials.WithLabelValues(normalizeLabel(scope)).Inc()
}

// IncTicketRedemption counts one redemption attempt for the ticket kind.
func (c *CoreMetrics) IncTicketRedemption(kind, outcome string) {
	if c == nil || c.ticketRedemptions == nil {
		return
	}
	c.ticketRedemptions.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
