// The tick scheduler. Fast work runs every tick; the slower passes fire on
// cadences configured as multiples of the fast tick. All passes for a tick
// run inside one unit of work, so queries never observe a half-applied tick.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
)

// Run drives the scheduler until the context is cancelled, then drains.
func (c *Core) Run(ctx context.Context) error {
	interval := c.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.Stop()
		case <-ticker.C:
			if err := c.TickOnce(); err != nil {
				return err
			}
			if next := c.TickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// TickOnce advances the simulation one tick.
func (c *Core) TickOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	c.runTick()
	return nil
}

func (c *Core) runTick() {
	c.tick++
	t := c.tick

	// Medium A: cultural influence and revolutionary-tendency contagion.
	if t%c.cfg.Ticks.MediumA == 0 {
		c.cult.Tick(t)
		c.mob.Contagion(t)
	}

	// Medium B: class mobility (including the revolution check) and the
	// economic-trust refresh.
	if t%c.cfg.Ticks.MediumB == 0 {
		c.mob.Tick(t)
		for _, a := range c.store.All() {
			c.refreshEconomicTrust(a)
		}
	}

	// Slow A: reputation decay and trust-graph maintenance.
	if t%c.cfg.Ticks.SlowA == 0 {
		c.rep.Decay(t)
		c.graph.DecayEdges(t)
		if reaped := c.graph.ReapQuiescent(t); reaped > 0 {
			slog.Debug("quiescent edges reaped", "tick", t, "count", reaped)
		}
		c.logReport(t)
	}

	// Slow B: generational turnover.
	if t%c.cfg.Ticks.SlowB == 0 {
		c.generationalTransfer(t)
	}

	c.commit()

	if c.snapshotter != nil && c.cfg.Runtime.SnapshotEvery > 0 && t%c.cfg.Runtime.SnapshotEvery == 0 {
		if err := c.snapshotter.Save(c); err != nil {
			slog.Error("snapshot failed", "tick", t, "error", err)
		}
	}
}

// logReport writes the slow-cadence population summary. Called under the
// core lock.
func (c *Core) logReport(t uint64) {
	all := c.store.All()
	totalWealth, repSum := 0.0, 0.0
	classes := make(map[string]int, len(c.cfg.Classes))
	for _, a := range all {
		totalWealth += a.Wealth
		repSum += a.Overall
		classes[c.cfg.Classes[a.Class].Name]++
	}
	avgRep := 0.0
	if len(all) > 0 {
		avgRep = repSum / float64(len(all))
	}
	slog.Info("daily report",
		"tick", t,
		"agents", len(all),
		"trust_edges", c.graph.EdgeCount(),
		"avg_reputation", avgRep,
		"total_wealth", humanize.Commaf(totalWealth),
		"classes", classes,
		"revolution_progress", c.mob.RevolutionProgress(),
		"era", c.cult.CurrentEra().Name,
		"generation", c.cult.Generation(),
	)
}

// Stop drains and seals the core. Later commands fail with ErrShutdown.
func (c *Core) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return faults.ErrShutdown
	}
	c.stopped = true

	c.bus.Stage(c.tick, events.StageMeta, events.Shutdown, map[string]any{
		"tick": c.tick,
	})
	c.rep.FlushMilestones(c.tick)
	c.bus.Flush()

	if c.snapshotter != nil {
		if err := c.snapshotter.Save(c); err != nil {
			slog.Error("final snapshot failed", "error", err)
		}
	}
	slog.Info("core stopped", "tick", c.tick, "agents", c.store.Len())
	return nil
}
