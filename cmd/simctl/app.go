package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hochfrequenz/scenario-sim/internal/catalog"
	"github.com/hochfrequenz/scenario-sim/internal/config"
	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/events"
	"github.com/hochfrequenz/scenario-sim/internal/fixtures"
	"github.com/hochfrequenz/scenario-sim/internal/narrative"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/packet"
	"github.com/hochfrequenz/scenario-sim/internal/simstore"
	"github.com/hochfrequenz/scenario-sim/internal/simstore/memstore"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

// backend is everything the engine, scheduler and packet generator need
// from storage. Both the SQLite store and the in-memory store satisfy it.
type backend interface {
	timeline.Store
	timeline.Purger
	events.Store
	packet.Store
	fixtures.FinanceWriter
	CountFinanceSnapshots(ctx context.Context) (int, error)
	Close() error
}

// app bundles the wired simulation components for one command invocation
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    backend
	engine   *timeline.Engine
	sched    *events.Scheduler
	exec     *events.Executor
	catalog  *catalog.Catalog
	packets  *packet.Generator
	staff    []domain.Employee
	initWarn error
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (backend, error) {
	if cfg.General.Storage == config.StorageMemory {
		return memstore.New(), nil
	}
	store, err := simstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// openApp loads config and wires store, clock, scheduler, executor and the
// packet generator. Callers must call close.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := observability.Setup(observability.Options{Format: cfg.Log.Format, Level: cfg.Log.Level})

	cat, err := catalog.Load(cfg.Simulation.CatalogPath)
	if err != nil {
		return nil, err
	}
	staff, err := fixtures.Employees()
	if err != nil {
		return nil, err
	}
	start, err := cfg.Start()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	engine := timeline.New(store, timeline.Config{
		Logger:         logger,
		Purger:         store,
		RollbackPolicy: cfg.RollbackPolicy(),
	})
	exec := events.NewExecutor(store, engine, logger)
	engine.SetCatchUp(exec)
	sched := events.NewScheduler(store, engine, logger)

	a := &app{
		cfg:     cfg,
		log:     logger,
		store:   store,
		engine:  engine,
		sched:   sched,
		exec:    exec,
		catalog: cat,
		staff:   staff,
	}
	a.packets = packet.New(store, sched, engine, narrative.NewLoader(cfg.Simulation.NarrativeDir), staff, logger)

	// A failed load still leaves a usable clock; catch-up failures are
	// reported per event and do not stop the command.
	if _, err := engine.Initialize(ctx, start); err != nil {
		if domain.IsPersistence(err) {
			store.Close()
			return nil, err
		}
		a.initWarn = err
		logger.Warn("Initialization finished with errors", "error", err)
	}

	if err := a.seedFinance(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// seedFinance fills an empty finance table so packets carry real numbers
func (a *app) seedFinance(ctx context.Context) error {
	if a.cfg.Simulation.SeedDays <= 0 {
		return nil
	}
	n, err := a.store.CountFinanceSnapshots(ctx)
	if err != nil || n > 0 {
		return err
	}
	_, err = fixtures.Seed(ctx, a.store, a.engine.StartDate(), a.cfg.Simulation.SeedDays, a.log)
	return err
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Closing store", "error", err)
	}
}
