package engine

import (
	metrics "github.com/rcrowley/go-metrics"

	"duel-match-system/models"
)

// Metrics are the engine counters, registered under "match.*"
type Metrics struct {
	Opened            metrics.Counter
	Started           metrics.Counter
	Finished          metrics.Counter
	Voided            metrics.Counter
	Expired           metrics.Counter
	Moves             metrics.Counter
	Timeouts          metrics.Counter
	SettlementRetries metrics.Counter
	Settlements       metrics.Meter
	Live              metrics.Gauge
}

func NewMetrics(r metrics.Registry) *Metrics {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &Metrics{
		Opened:            metrics.GetOrRegisterCounter("match.opened", r),
		Started:           metrics.GetOrRegisterCounter("match.started", r),
		Finished:          metrics.GetOrRegisterCounter("match.finished", r),
		Voided:            metrics.GetOrRegisterCounter("match.voided", r),
		Expired:           metrics.GetOrRegisterCounter("match.expired", r),
		Moves:             metrics.GetOrRegisterCounter("match.moves", r),
		Timeouts:          metrics.GetOrRegisterCounter("match.move_timeouts", r),
		SettlementRetries: metrics.GetOrRegisterCounter("match.settlement_retries", r),
		Settlements:       metrics.GetOrRegisterMeter("match.settlements", r),
		Live:              metrics.GetOrRegisterGauge("match.live", r),
	}
}

func (m *Metrics) terminal(state models.MatchState) {
	switch state {
	case models.MatchStateFinished:
		m.Finished.Inc(1)
		m.Settlements.Mark(1)
	case models.MatchStateVoided:
		m.Voided.Inc(1)
	case models.MatchStateExpired:
		m.Expired.Inc(1)
	}
}
