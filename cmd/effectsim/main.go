package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	"github.com/udisondev/abilitysystem/internal/config"
	"github.com/udisondev/abilitysystem/internal/cue"
	"github.com/udisondev/abilitysystem/internal/data"
	"github.com/udisondev/abilitysystem/internal/db"
	"github.com/udisondev/abilitysystem/internal/replication"
	"github.com/udisondev/abilitysystem/internal/telemetry"
)

const ConfigPath = "config/effectsim.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("EFFECTSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadSimulation(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	abilitysystem.EnableDebugLogging(logLevel == slog.LevelDebug)

	slog.Info("effectsim starting",
		"log_level", cfg.LogLevel,
		"tick_rate", cfg.TickRate,
		"entities", len(cfg.Entities))

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()

	cat, err := data.LoadCatalog(cfg.CatalogPath, data.Options{})
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	var hub *replication.Hub
	if cfg.Replication.Enabled {
		hub = replication.NewHub(replication.HubConfig{
			Fingerprint:  cat.Fingerprint(),
			Local:        cue.LogDispatcher{},
			SendQueue:    cfg.Replication.SendQueue,
			WriteTimeout: cfg.Replication.WriteTimeout,
		})
		defer hub.Close()
	}

	deps := worldDeps{Cues: hub, Metrics: metrics}
	if cfg.Seed != 0 {
		deps.Random = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}
	w, err := newWorld(cfg, cat, deps)
	if err != nil {
		return fmt.Errorf("building world: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	if store != nil {
		defer store.Close()
		if err := w.restore(ctx, store); err != nil {
			return fmt.Errorf("restoring snapshots: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	simCtx, stopSim := context.WithCancel(gctx)
	defer stopSim()

	snapshots := make(chan []db.Snapshot, 1)

	g.Go(func() error {
		defer close(snapshots)
		defer stopSim()
		slog.Info("starting tick loop", "interval", cfg.TickInterval(), "duration", cfg.Duration)
		return runTicks(simCtx, w, cfg, snapshots, store != nil)
	})

	if store != nil {
		g.Go(func() error {
			slog.Info("starting snapshot saver", "driver", cfg.Store.Driver, "interval", cfg.Store.SnapshotInterval)
			return saveSnapshots(w, store, snapshots)
		})
	}

	if hub != nil {
		g.Go(func() error {
			slog.Info("starting replication hub", "addr", cfg.Replication.ListenAddr)
			return serveHTTP(simCtx, cfg.Replication.ListenAddr, hub)
		})
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler(reg))
		g.Go(func() error {
			slog.Info("starting metrics server", "addr", cfg.Metrics.ListenAddr)
			return serveHTTP(simCtx, cfg.Metrics.ListenAddr, mux)
		})
	}

	waitErr := g.Wait()

	if store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.SaveAll(saveCtx, store, w.snapshots()); err != nil {
			slog.Error("saving final snapshots", "error", err)
		} else {
			slog.Info("final snapshots saved", "entities", len(w.entities))
		}
	}

	if waitErr != nil {
		return fmt.Errorf("simulation error: %w", waitErr)
	}

	slog.Info("effectsim stopped", "active_effects", w.activeEffects())
	return nil
}

// runTicks drives the world until ctx is done or cfg.Duration of simulated
// time has passed, queuing snapshots every SnapshotInterval.
func runTicks(ctx context.Context, w *world, cfg config.Simulation, snapshots chan<- []db.Snapshot, persist bool) error {
	interval := cfg.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var elapsed, sinceSnapshot time.Duration
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		w.tick(ctx, interval)
		elapsed += interval
		sinceSnapshot += interval

		if persist && cfg.Store.SnapshotInterval > 0 && sinceSnapshot >= cfg.Store.SnapshotInterval {
			sinceSnapshot = 0
			select {
			case snapshots <- w.snapshots():
			default:
				slog.Warn("snapshot saver busy, skipping snapshot")
			}
		}

		if cfg.Duration > 0 && elapsed >= cfg.Duration {
			slog.Info("simulation duration reached", "elapsed", elapsed)
			return nil
		}
	}
}

// saveSnapshots persists every batch until snapshots is closed.
func saveSnapshots(w *world, store db.Store, snapshots <-chan []db.Snapshot) error {
	for batch := range snapshots {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		ctx, span := w.tracer.Start(ctx, "effectsim.snapshot")
		err := db.SaveAll(ctx, store, batch)
		span.End()
		cancel()
		if err != nil {
			return fmt.Errorf("saving snapshots: %w", err)
		}
		slog.Debug("snapshots saved", "entities", len(batch))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Simulation) (db.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		store, err := db.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		dsn := cfg.Database.DSN()
		if err := db.RunMigrations(ctx, dsn); err != nil {
			return nil, err
		}
		database, err := db.New(ctx, dsn, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		slog.Info("database connected", "host", cfg.Database.Host, "db", cfg.Database.DBName)
		return db.NewPostgresStore(database.Pool()), nil
	default:
		return nil, nil
	}
}

// serveHTTP runs an HTTP server until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server %s shutdown: %w", addr, err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
