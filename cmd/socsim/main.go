// Command socsim runs the social dynamics simulation core with its HTTP
// observer API and SQLite snapshots.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/polis/internal/api"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/engine"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/persistence"
	"github.com/talgya/polis/internal/trust"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config (optional)")
		population = flag.Int("population", 200, "initial population for a fresh run")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config rejected", "error", err)
		os.Exit(1)
	}
	slog.Info("polis social dynamics simulation",
		"seed", cfg.Runtime.Seed,
		"tick_interval", cfg.Runtime.TickInterval,
		"classes", len(cfg.Classes),
		"cultural_dimensions", len(cfg.CulturalDimensions),
	)

	core := engine.New(cfg)

	// ── Persistence ───────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Runtime.SnapshotPath != "" {
		os.MkdirAll(filepath.Dir(cfg.Runtime.SnapshotPath), 0755)
		db, err = persistence.Open(cfg.Runtime.SnapshotPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		core.SetSnapshotter(db)
		slog.Info("database opened", "path", cfg.Runtime.SnapshotPath)
	}

	// ── Load or generate population ───────────────────────────────────
	restored := false
	if db != nil {
		restored, err = db.Restore(core)
		if err != nil {
			slog.Error("failed to restore snapshot", "error", err)
			os.Exit(1)
		}
	}
	if !restored {
		slog.Info("no saved state found, spawning fresh population", "count", *population)
		if err := seedWorld(core, *population); err != nil {
			slog.Error("failed to seed population", "error", err)
			os.Exit(1)
		}
	}

	totalWealth := 0.0
	for _, a := range core.Store().All() {
		totalWealth += a.Wealth
	}
	slog.Info("population ready",
		"agents", core.Store().Len(),
		"trust_edges", core.Graph().EdgeCount(),
		"total_wealth", humanize.Commaf(totalWealth),
	)

	// ── Event log ─────────────────────────────────────────────────────
	if db != nil {
		ch, cancel := core.Subscribe()
		defer cancel()
		go logEvents(db, ch)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	srv := &api.Server{
		Core:     core,
		DB:       db,
		Port:     cfg.Runtime.APIPort,
		AdminKey: cfg.Runtime.AdminKey,
	}
	srv.Start()

	// ── Run until signalled ───────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := core.Run(ctx); err != nil {
		slog.Error("core exited", "error", err)
	}

	// Give subscribers a moment to drain before the process exits.
	time.Sleep(min(cfg.Runtime.DrainDeadline, 5*time.Second))
	slog.Info("shutdown complete", "tick", core.Tick())
}

// seedWorld spawns the starting population and lays down a sparse trust
// network plus one nascent union, so the social dynamics have something to
// chew on from the first tick.
func seedWorld(core *engine.Core, population int) error {
	ids, err := core.SpawnPopulation(population)
	if err != nil {
		return err
	}

	// Ring-plus-skip topology: everyone trusts two neighbors, giving the
	// cascades and the culture engine a connected graph.
	for i, id := range ids {
		next := ids[(i+1)%len(ids)]
		skip := ids[(i+7)%len(ids)]
		if err := core.EstablishTrust(id, next, trust.EdgeInit{Kind: trust.KindPersonal}); err != nil {
			return err
		}
		if id != skip {
			if err := core.EstablishTrust(id, skip, trust.EdgeInit{Kind: trust.KindBusiness, Context: "commerce"}); err != nil {
				return err
			}
		}
	}

	// A small founding union among the earliest agents.
	if len(ids) >= 10 {
		orgID, err := core.FormOrganization("United Workers", "union", ids[0])
		if err != nil {
			return err
		}
		for _, id := range ids[1:10] {
			if err := core.JoinOrganization(orgID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// logEvents batches committed events into the append-only log.
func logEvents(db *persistence.DB, ch <-chan events.Event) {
	batch := make([]events.Event, 0, 64)
	flush := time.NewTicker(2 * time.Second)
	defer flush.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				db.AppendEvents(batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= 256 {
				if err := db.AppendEvents(batch); err != nil {
					slog.Error("event log write failed", "error", err)
				}
				batch = batch[:0]
			}
		case <-flush.C:
			if len(batch) > 0 {
				if err := db.AppendEvents(batch); err != nil {
					slog.Error("event log write failed", "error", err)
				}
				batch = batch[:0]
			}
		}
	}
}
