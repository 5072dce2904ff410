package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	asattr "github.com/udisondev/abilitysystem/internal/attribute"
	"github.com/udisondev/abilitysystem/internal/config"
	"github.com/udisondev/abilitysystem/internal/data"
	"github.com/udisondev/abilitysystem/internal/db"
	"github.com/udisondev/abilitysystem/internal/effect"
	"github.com/udisondev/abilitysystem/internal/prediction"
	"github.com/udisondev/abilitysystem/internal/replication"
	"github.com/udisondev/abilitysystem/internal/tag"
	"github.com/udisondev/abilitysystem/internal/telemetry"
	"github.com/udisondev/abilitysystem/internal/timer"
)

// entityNamespace derives stable snapshot IDs from entity names.
var entityNamespace = uuid.MustParse("6f1c2d7e-4b0a-4c53-9a4e-2f8d61b0c9aa")

type entity struct {
	id   uuid.UUID
	name string
	comp *abilitysystem.Component
	pub  *replication.Publisher
}

// world owns every simulated component. All methods run on the tick
// goroutine.
type world struct {
	timers   *timer.Manager
	catalog  *data.Catalog
	metrics  tickObserver
	tracer   trace.Tracer
	entities []*entity
}

type tickObserver interface {
	ObserveTick(d time.Duration, activeEffects int)
}

type nopTickObserver struct{}

func (nopTickObserver) ObserveTick(time.Duration, int) {}

type worldDeps struct {
	Cues    *replication.Hub // nil disables replication
	Metrics *telemetry.Metrics
	Random  abilitysystem.RandomSource
}

func newWorld(cfg config.Simulation, cat *data.Catalog, deps worldDeps) (*world, error) {
	w := &world{
		timers:  timer.NewManager(),
		catalog: cat,
		metrics: nopTickObserver{},
		tracer:  telemetry.Tracer(),
	}
	var metrics abilitysystem.Metrics
	if deps.Metrics != nil {
		metrics = deps.Metrics
		w.metrics = deps.Metrics
	}

	byName := make(map[string]*entity, len(cfg.Entities))
	for _, ec := range cfg.Entities {
		ids := make([]asattr.SetID, 0, len(ec.AttributeSets))
		for _, s := range ec.AttributeSets {
			ids = append(ids, asattr.SetID(s))
		}
		sets, err := cat.Registry().Instantiate(ids...)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", ec.Name, err)
		}

		acfg := abilitysystem.Config{
			ID:         ec.Name,
			Authority:  true,
			Attributes: sets,
			Timers:     w.timers,
			Random:     deps.Random,
			Catalog:    cat,
			Metrics:    metrics,
		}
		if deps.Cues != nil {
			acfg.Cues = deps.Cues
			acfg.Multicast = deps.Cues
		}

		e := &entity{
			id:   uuid.NewSHA1(entityNamespace, []byte(ec.Name)),
			name: ec.Name,
			comp: abilitysystem.New(acfg),
		}
		for _, t := range ec.Tags {
			e.comp.AddLooseGameplayTag(tag.Tag(t), 1)
		}
		if deps.Cues != nil {
			e.pub = replication.Publish(deps.Cues, e.comp)
		}
		byName[ec.Name] = e
		w.entities = append(w.entities, e)
	}

	for _, ec := range cfg.Entities {
		target := byName[ec.Name]
		for _, ac := range ec.Apply {
			source := target
			if ac.Source != "" {
				source = byName[ac.Source]
			}
			if err := w.schedule(source, target, ac); err != nil {
				return nil, fmt.Errorf("entity %s: %w", ec.Name, err)
			}
		}
	}
	return w, nil
}

// schedule applies ac from source to target at ac.At, then every ac.Every.
func (w *world) schedule(source, target *entity, ac config.ApplicationConfig) error {
	def, ok := w.catalog.Definition(ac.Effect)
	if !ok {
		return fmt.Errorf("%q: %w", ac.Effect, data.ErrUnknownEffect)
	}
	level := ac.Level
	if level == 0 {
		level = 1
	}

	apply := func() {
		spec := source.comp.MakeOutgoingSpec(def, level, effect.Context{EffectCauser: source.name})
		for name, v := range ac.SetByCaller {
			spec.SetSetByCallerMagnitude(name, v)
		}
		h := source.comp.ApplyGameplayEffectSpecToTarget(spec, target.comp, prediction.Key{})
		if abilitysystem.IsDebugEnabled() {
			slog.Debug("scripted application",
				"effect", def.Name,
				"source", source.name,
				"target", target.name,
				"handle", h)
		}
	}

	w.timers.Schedule(ac.At.Seconds(), false, func() {
		apply()
		if ac.Every > 0 {
			w.timers.Schedule(ac.Every.Seconds(), true, apply)
		}
	})
	return nil
}

// tick advances simulated time by dt and publishes attribute changes.
func (w *world) tick(ctx context.Context, dt time.Duration) {
	start := time.Now()
	_, span := w.tracer.Start(ctx, "effectsim.tick")
	defer span.End()

	fired := w.timers.Advance(dt.Seconds())
	for _, e := range w.entities {
		if e.pub != nil {
			e.pub.Flush()
		}
	}

	active := w.activeEffects()
	span.SetAttributes(
		attribute.Int("timers.fired", fired),
		attribute.Int("effects.active", active),
	)
	w.metrics.ObserveTick(time.Since(start), active)
}

func (w *world) activeEffects() int {
	n := 0
	for _, e := range w.entities {
		n += e.comp.Effects().Len()
	}
	return n
}

// snapshots copies the saved state of every entity.
func (w *world) snapshots() []db.Snapshot {
	now := time.Now().UTC()
	out := make([]db.Snapshot, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, db.Snapshot{
			OwnerID:   e.id,
			OwnerName: e.name,
			Effects:   e.comp.SaveEffects(),
			SavedAt:   now,
		})
	}
	return out
}

// restore re-applies the stored snapshot of every entity that has one.
func (w *world) restore(ctx context.Context, store db.Store) error {
	ctx, span := w.tracer.Start(ctx, "effectsim.restore")
	defer span.End()

	for _, e := range w.entities {
		snap, err := store.Load(ctx, e.id)
		if errors.Is(err, db.ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", e.name, err)
		}
		n := e.comp.RestoreEffects(snap.Effects)
		slog.Info("restored effects",
			"entity", e.name,
			"restored", n,
			"saved", len(snap.Effects),
			"saved_at", snap.SavedAt)
	}
	return nil
}
