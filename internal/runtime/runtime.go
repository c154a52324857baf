// ABOUTME: Runtime assembles the bus, registry, and managers from config.
// ABOUTME: One Runtime owns one bus and one registry; callers share them.

package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/aide-runtime/internal/builtins"
	"github.com/2389/aide-runtime/internal/bus"
	"github.com/2389/aide-runtime/internal/config"
	"github.com/2389/aide-runtime/internal/device"
	"github.com/2389/aide-runtime/internal/dialogue"
	"github.com/2389/aide-runtime/internal/flow"
	"github.com/2389/aide-runtime/internal/intent"
	"github.com/2389/aide-runtime/internal/persist"
	"github.com/2389/aide-runtime/internal/policy"
	"github.com/2389/aide-runtime/internal/skill"
	"github.com/2389/aide-runtime/internal/store"
)

// Runtime wires the conversation orchestration components together.
// Everything hangs off a single event bus and a single skill registry.
type Runtime struct {
	Bus         *bus.EventBus
	Registry    *skill.Registry
	Devices     *device.Manager
	Flow        *flow.Manager
	Dialogue    *dialogue.Manager
	Persistence *persist.Manager

	store  *store.SQLiteStore // nil when no database is configured
	logger *slog.Logger
}

// New builds a Runtime from configuration. The built-in skills are
// registered before the dialogue layer comes up, so the first turn can
// already dispatch to them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	tables, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return nil, fmt.Errorf("loading policy tables: %w", err)
	}

	var db *store.SQLiteStore
	var turnStore dialogue.TurnStore
	var snapStore persist.Store
	if cfg.Database.Path != "" {
		db, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		turnStore = db
		snapStore = db
	}

	eventBus := bus.New(cfg.Bus.HistorySize, logger)

	registry := skill.NewRegistry(eventBus, skill.StaticPermissions(cfg.Permissions), logger)
	if err := builtins.RegisterAll(ctx, registry); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("registering built-in skills: %w", err)
	}

	classifier := intent.NewKeywordClassifier()
	devices := device.NewManager(logger)
	flowMgr := flow.NewManager(registry, eventBus, classifier, tables, logger)

	dialogueMgr := dialogue.NewManager(flowMgr, devices, registry, classifier, tables, eventBus, turnStore,
		dialogue.Config{
			IdleTimeout:   cfg.Sessions.IdleTimeout,
			SweepInterval: cfg.Sessions.SweepInterval,
		}, logger)

	persistMgr := persist.NewManager(snapStore, tables, eventBus, logger)

	logger.Info("runtime assembled",
		"skills", len(registry.ListSkills("", "")),
		"durable", db != nil)

	return &Runtime{
		Bus:         eventBus,
		Registry:    registry,
		Devices:     devices,
		Flow:        flowMgr,
		Dialogue:    dialogueMgr,
		Persistence: persistMgr,
		store:       db,
		logger:      logger.With("component", "runtime"),
	}, nil
}

// Close shuts the runtime down: the dialogue sweeper stops, the bus
// stops accepting publishes, and the store is closed last.
func (r *Runtime) Close() error {
	r.Dialogue.Close()
	r.Bus.Stop()
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
