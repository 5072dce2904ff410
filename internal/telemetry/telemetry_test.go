package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	"github.com/udisondev/abilitysystem/internal/config"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.EffectApplied("Burn")
	m.EffectApplied("Burn")
	m.EffectRejected("Burn", abilitysystem.RejectImmunity)
	m.EffectRemoved("Burn", true)
	m.EffectRemoved("Burn", false)
	m.EffectRemoved("Burn", false)
	m.PeriodicExecuted("Burn")
	m.ObserveTick(2*time.Millisecond, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.applied.WithLabelValues("Burn")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("Burn", "immunity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.removed.WithLabelValues("Burn", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.removed.WithLabelValues("Burn", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.periodic.WithLabelValues("Burn")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.activeEffects))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.EffectApplied("Haste")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `effectsim_effects_applied_total{effect="Haste"} 1`)
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{ServiceName: "effectsim"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}
