package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/config"
	"github.com/udisondev/abilitysystem/internal/data"
	"github.com/udisondev/abilitysystem/internal/db"
	"github.com/udisondev/abilitysystem/internal/replication"
	"github.com/udisondev/abilitysystem/internal/telemetry"
)

const worldCatalog = `
attribute_sets:
  - id: Vitals
    fields:
      - {name: Health, default: 100}
      - {name: Armor, default: 10}

effects:
  - name: Bulwark
    policy: infinite
    modifiers:
      - attribute: Vitals.Armor
        op: Additive
        magnitude: {scalar: 5}

  - name: Smite
    modifiers:
      - attribute: Vitals.Health
        op: Additive
        magnitude: {set_by_caller: Damage}
`

var (
	attrHealth = attribute.New("Vitals", "Health")
	attrArmor  = attribute.New("Vitals", "Armor")
)

func worldConfig() config.Simulation {
	cfg := config.DefaultSimulation()
	cfg.TickRate = 4
	cfg.Entities = []config.EntityConfig{
		{
			Name:          "hero",
			AttributeSets: []string{"Vitals"},
			Apply:         []config.ApplicationConfig{{Effect: "Bulwark"}},
		},
		{
			Name:          "dummy",
			AttributeSets: []string{"Vitals"},
			Tags:          []string{"Type.Training"},
			Apply: []config.ApplicationConfig{{
				Effect:      "Smite",
				Source:      "hero",
				At:          time.Second,
				Every:       2 * time.Second,
				SetByCaller: map[string]float64{"Damage": -30},
			}},
		},
	}
	return cfg
}

func newTestWorld(t *testing.T, deps worldDeps) *world {
	t.Helper()
	cat, err := data.ParseCatalog([]byte(worldCatalog), data.Options{})
	require.NoError(t, err)
	w, err := newWorld(worldConfig(), cat, deps)
	require.NoError(t, err)
	return w
}

func value(t *testing.T, w *world, i int, attr attribute.Attribute) float64 {
	t.Helper()
	v, ok := w.entities[i].comp.NumericAttribute(attr)
	require.True(t, ok)
	return v
}

func advance(w *world, ticks int) {
	for range ticks {
		w.tick(context.Background(), 250*time.Millisecond)
	}
}

func TestWorld_ScriptedApplications(t *testing.T) {
	w := newTestWorld(t, worldDeps{Metrics: telemetry.NewMetrics(prometheus.NewRegistry())})

	advance(w, 1)
	assert.Equal(t, 15.0, value(t, w, 0, attrArmor))
	assert.Equal(t, 100.0, value(t, w, 1, attrHealth))

	advance(w, 3) // t=1s
	assert.Equal(t, 70.0, value(t, w, 1, attrHealth))

	advance(w, 8) // t=3s
	assert.Equal(t, 40.0, value(t, w, 1, attrHealth))
	assert.Equal(t, 1, w.activeEffects())
	assert.True(t, w.entities[1].comp.HasMatchingGameplayTag("Type.Training"))
}

func TestWorld_UnknownEffect(t *testing.T) {
	cat, err := data.ParseCatalog([]byte(worldCatalog), data.Options{})
	require.NoError(t, err)
	cfg := worldConfig()
	cfg.Entities[0].Apply[0].Effect = "Missing"

	_, err = newWorld(cfg, cat, worldDeps{})
	assert.ErrorIs(t, err, data.ErrUnknownEffect)
}

func TestWorld_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	defer store.Close()

	w := newTestWorld(t, worldDeps{})
	advance(w, 1)
	require.NoError(t, db.SaveAll(ctx, store, w.snapshots()))

	restored := newTestWorld(t, worldDeps{})
	assert.Equal(t, 10.0, value(t, restored, 0, attrArmor))
	require.NoError(t, restored.restore(ctx, store))
	assert.Equal(t, 15.0, value(t, restored, 0, attrArmor))
	assert.Equal(t, w.entities[0].id, restored.entities[0].id)
}

func TestWorld_PublishesToHub(t *testing.T) {
	hub := replication.NewHub(replication.HubConfig{})
	defer hub.Close()

	w := newTestWorld(t, worldDeps{Cues: hub})
	advance(w, 1)

	require.NotNil(t, w.entities[0].pub)
	records := w.entities[0].comp.ReplicatedEffects()
	require.Len(t, records, 1)
	assert.Equal(t, "Bulwark", records[0].Definition)
}
