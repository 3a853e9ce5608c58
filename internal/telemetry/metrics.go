package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/battle"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

const namespace = "stemforces"

// Metrics counts battle lifecycle events. It satisfies app.Recorder.
type Metrics struct {
	battlesStarted   prometheus.Counter
	battlesCompleted prometheus.Counter
	battlesAbandoned prometheus.Counter
	activeBattles    prometheus.Gauge
	roundsResolved   *prometheus.CounterVec
	powerUpsUsed     *prometheus.CounterVec
	supplyFallbacks  *prometheus.CounterVec
}

// NewMetrics registers the battle collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		battlesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battles_started_total",
			Help:      "Battles that reached the countdown.",
		}),
		battlesCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battles_completed_total",
			Help:      "Battles that resolved their last round.",
		}),
		battlesAbandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battles_abandoned_total",
			Help:      "Battles left before completion.",
		}),
		activeBattles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_battles",
			Help:      "Battles currently running.",
		}),
		roundsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Resolved rounds by trigger.",
		}, []string{"trigger"}),
		powerUpsUsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "powerups_used_total",
			Help:      "Consumed power-ups by kind.",
		}, []string{"kind"}),
		supplyFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supply_fallbacks_total",
			Help:      "Times the static round set replaced the question source.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) BattleStarted() {
	m.battlesStarted.Inc()
	m.activeBattles.Inc()
}

func (m *Metrics) BattleEnded(completed bool) {
	m.activeBattles.Dec()
	if completed {
		m.battlesCompleted.Inc()
		return
	}
	m.battlesAbandoned.Inc()
}

func (m *Metrics) RoundResolved(trigger domain.ResolutionTrigger) {
	m.roundsResolved.WithLabelValues(string(trigger)).Inc()
}

func (m *Metrics) PowerUpUsed(kind domain.PowerUpKind) {
	m.powerUpsUsed.WithLabelValues(string(kind)).Inc()
}

// SupplyFallback is meant for battle.WithFallbackHook.
func (m *Metrics) SupplyFallback(reason battle.FallbackReason) {
	m.supplyFallbacks.WithLabelValues(string(reason)).Inc()
}
