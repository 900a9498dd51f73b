// Package engine assembles the subsystems into the simulation core: a
// single-writer facade that serializes commands against the tick scheduler
// and flushes committed events after each unit of work.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/culture"
	"github.com/talgya/polis/internal/entropy"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
	"github.com/talgya/polis/internal/mobility"
	"github.com/talgya/polis/internal/reputation"
	"github.com/talgya/polis/internal/social"
	"github.com/talgya/polis/internal/trust"
)

// Snapshotter persists the core's state. Wired by the runner; nil disables
// periodic snapshots.
type Snapshotter interface {
	Save(c *Core) error
}

// Core is the simulation facade. All state behind it is guarded by mu;
// commands, queries, and ticks each take the lock, so their effects
// interleave at unit-of-work granularity and never mid-pass.
type Core struct {
	mu  sync.Mutex
	cfg config.Config

	store   *agents.Store
	graph   *trust.Graph
	rep     *reputation.Engine
	mob     *mobility.Engine
	cult    *culture.Engine
	social  *social.Registry
	bus     *events.Bus
	spawner *agents.Spawner

	// Named entropy streams, one per subsystem, so draws in one engine never
	// shift the sequence another sees.
	idStream      *entropy.Source
	mobStream     *entropy.Source
	cultStream    *entropy.Source
	spawnStream   *entropy.Source
	cascadeStream *entropy.Source

	snapshotter Snapshotter

	// Fast-tick interval in nanoseconds. The scheduler re-reads it every
	// tick, so SetSpeed takes effect without restarting the loop.
	tickInterval atomic.Int64

	tick    uint64
	stopped bool
}

// graphNeighbors adapts the trust graph to the reputation engine's view of
// outgoing edges.
type graphNeighbors struct {
	g *trust.Graph
}

func (n graphNeighbors) Outgoing(id agents.AgentID) []reputation.Neighbor {
	edges := n.g.OutgoingEdges(id)
	out := make([]reputation.Neighbor, 0, len(edges))
	for _, e := range edges {
		out = append(out, reputation.Neighbor{ID: e.To, Aggregate: n.g.Aggregate(e)})
	}
	return out
}

// New builds a core from a validated configuration.
func New(cfg config.Config) *Core {
	root := entropy.NewSource(cfg.Runtime.Seed)
	c := &Core{
		cfg:           cfg,
		store:         agents.NewStore(),
		idStream:      root.Stream("event_ids"),
		mobStream:     root.Stream("mobility"),
		cultStream:    root.Stream("culture"),
		spawnStream:   root.Stream("spawn"),
		cascadeStream: root.Stream("cascades"),
	}

	c.bus = events.NewBus(cfg.Runtime.EventBuffer, cfg.Runtime.OverflowBuffer, c.idStream.UUID)
	c.graph = trust.NewGraph(cfg, c.bus)
	c.rep = reputation.New(cfg, c.store, graphNeighbors{c.graph}, c.bus)
	c.social = social.NewRegistry(c.store, c.bus)
	c.mob = mobility.New(cfg, c.store, c.graph, c.rep, c.bus, c.mobStream, c.social.IsUnionMember)
	c.cult = culture.New(cfg, c.store, c.graph, c.bus, c.cultStream)
	c.spawner = agents.NewSpawner(c.spawnStream, len(cfg.CulturalDimensions))

	// Successful revolutions reshape the culture in the same tick.
	c.mob.OnRevolutionSuccess = c.cult.RevolutionaryShift

	c.tickInterval.Store(int64(cfg.Runtime.TickInterval))
	return c
}

// SetSpeed rescales the fast-tick interval by a multiplier over the
// configured base. 2 runs twice as fast, 0.5 at half speed.
func (c *Core) SetSpeed(multiplier float64) error {
	if multiplier <= 0 || multiplier > 1000 {
		return fmt.Errorf("%w: speed multiplier out of (0,1000]", faults.ErrInvalidArgument)
	}
	interval := time.Duration(float64(c.cfg.Runtime.TickInterval) / multiplier)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	c.tickInterval.Store(int64(interval))
	slog.Info("tick speed changed", "multiplier", multiplier, "interval", interval)
	return nil
}

// TickInterval returns the current fast-tick interval.
func (c *Core) TickInterval() time.Duration {
	return time.Duration(c.tickInterval.Load())
}

// SetSnapshotter attaches a persistence sink for periodic snapshots.
func (c *Core) SetSnapshotter(s Snapshotter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshotter = s
}

// Config returns the frozen configuration.
func (c *Core) Config() config.Config { return c.cfg }

// Tick returns the current tick counter.
func (c *Core) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Subscribe attaches an event consumer.
func (c *Core) Subscribe() (<-chan events.Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Subscribe()
}

// Internal accessors for the persistence layer, which serializes the whole
// core under the caller's unit of work.

// Store exposes the agent store.
func (c *Core) Store() *agents.Store { return c.store }

// Graph exposes the trust graph.
func (c *Core) Graph() *trust.Graph { return c.graph }

// Culture exposes the culture engine.
func (c *Core) Culture() *culture.Engine { return c.cult }

// Mobility exposes the mobility engine.
func (c *Core) Mobility() *mobility.Engine { return c.mob }

// Social exposes the organization registry.
func (c *Core) Social() *social.Registry { return c.social }

// RestoreTick reinstates the tick counter from a snapshot.
func (c *Core) RestoreTick(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = tick
}

// AdoptAgent reinstates a snapshotted agent record: rings are ensured,
// derived reputation state is recomputed, and no events are staged.
func (c *Core) AdoptAgent(a *agents.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.cfg.HistoryCap
	if a.RepHistory == nil {
		a.RepHistory = agents.NewRing[agents.ReputationChange](n)
	}
	if a.CultureHistory == nil {
		a.CultureHistory = agents.NewRing[agents.CulturalChange](n)
	}
	if a.MobilityHistory == nil {
		a.MobilityHistory = agents.NewRing[agents.MobilityAttempt](n)
	}
	if a.ClassHistory == nil {
		a.ClassHistory = agents.NewRing[agents.ClassChange](n)
	}
	if a.Organizations == nil {
		a.Organizations = make(map[uint64]struct{})
	}
	if a.Communities == nil {
		a.Communities = make(map[uint64]struct{})
	}

	if err := c.store.Register(a); err != nil {
		return err
	}
	c.rep.InitAgent(a)
	c.refreshEconomicTrust(a)
	if a.ID >= c.spawner.NextID() {
		c.spawner.SetNextID(a.ID + 1)
	}
	return nil
}

// commit flushes milestone and staged events after a unit of work.
func (c *Core) commit() {
	c.rep.FlushMilestones(c.tick)
	if n := len(c.bus.Flush()); n > 0 {
		slog.Debug("events committed", "tick", c.tick, "count", n)
	}
}
