package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
)

// Metrics implements abilitysystem.Metrics on Prometheus collectors.
type Metrics struct {
	applied       *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	removed       *prometheus.CounterVec
	periodic      *prometheus.CounterVec
	activeEffects prometheus.Gauge
	tickDuration  prometheus.Histogram
}

var _ abilitysystem.Metrics = (*Metrics)(nil)

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		applied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "effectsim_effects_applied_total",
			Help: "Gameplay effect applications that passed every check",
		}, []string{"effect"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "effectsim_effects_rejected_total",
			Help: "Gameplay effect applications refused, by reason",
		}, []string{"effect", "reason"}),
		removed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "effectsim_effects_removed_total",
			Help: "Active effects removed, split by premature removal",
		}, []string{"effect", "premature"}),
		periodic: f.NewCounterVec(prometheus.CounterOpts{
			Name: "effectsim_periodic_executions_total",
			Help: "Periodic effect executions",
		}, []string{"effect"}),
		activeEffects: f.NewGauge(prometheus.GaugeOpts{
			Name: "effectsim_active_effects",
			Help: "Active effects across all simulated entities",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "effectsim_tick_duration_seconds",
			Help:    "Wall time spent advancing one simulation tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
	}
}

func (m *Metrics) EffectApplied(effect string) {
	m.applied.WithLabelValues(effect).Inc()
}

func (m *Metrics) EffectRejected(effect string, reason abilitysystem.RejectReason) {
	m.rejected.WithLabelValues(effect, string(reason)).Inc()
}

func (m *Metrics) EffectRemoved(effect string, premature bool) {
	m.removed.WithLabelValues(effect, strconv.FormatBool(premature)).Inc()
}

func (m *Metrics) PeriodicExecuted(effect string) {
	m.periodic.WithLabelValues(effect).Inc()
}

// ObserveTick records one tick and the active effect count after it.
func (m *Metrics) ObserveTick(d time.Duration, activeEffects int) {
	m.tickDuration.Observe(d.Seconds())
	m.activeEffects.Set(float64(activeEffects))
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
