// Package trust owns the directed relationship graph: five-dimension trust
// edges with trajectory buffers, lazy edge creation, neutral-edge reaping,
// and breadth-limited influence cascades.
package trust

import (
	"fmt"
	"math"
	"sort"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
)

// Edge kinds modulate cascade propagation.
const (
	KindPersonal      = "personal"
	KindBusiness      = "business"
	KindInstitutional = "institutional"
)

var kindModifiers = map[string]float64{
	KindPersonal:      1.0,
	KindBusiness:      0.9,
	KindInstitutional: 0.8,
}

// KindModifier returns the cascade modifier for an edge kind. Unknown kinds
// propagate at full strength.
func KindModifier(kind string) float64 {
	if m, ok := kindModifiers[kind]; ok {
		return m
	}
	return 1.0
}

// Edge is a directed trust relationship A → B.
type Edge struct {
	From agents.AgentID `json:"from"`
	To   agents.AgentID `json:"to"`

	Dims         [config.NumTrustDims]float64 `json:"dims"`
	Confidence   float64                      `json:"confidence"`
	Interactions int                          `json:"interactions"`
	CreatedTick  uint64                       `json:"created_tick"`
	UpdatedTick  uint64                       `json:"updated_tick"`

	Trajectory *agents.Ring[float64] `json:"-"` // recent aggregate deltas
	Volatility float64               `json:"volatility"`
	Stability  float64               `json:"stability"`

	Context           string  `json:"context"`
	Kind              string  `json:"kind"`
	PropagationWeight float64 `json:"propagation_weight"`

	// Tick at which every dimension entered the neutral band, or 0.
	neutralSince uint64
}

// EdgeInit carries optional starting state for Establish.
type EdgeInit struct {
	Dims              map[string]float64
	Context           string
	Kind              string
	PropagationWeight float64
}

// Graph is the trust relationship store.
type Graph struct {
	cfg config.Config
	bus *events.Bus

	out map[agents.AgentID]map[agents.AgentID]*Edge
	in  map[agents.AgentID]map[agents.AgentID]struct{}
}

// NewGraph creates an empty graph.
func NewGraph(cfg config.Config, bus *events.Bus) *Graph {
	return &Graph{
		cfg: cfg,
		bus: bus,
		out: make(map[agents.AgentID]map[agents.AgentID]*Edge),
		in:  make(map[agents.AgentID]map[agents.AgentID]struct{}),
	}
}

// Aggregate returns the weighted aggregate trust of an edge.
func (g *Graph) Aggregate(e *Edge) float64 {
	agg := 0.0
	for i, w := range g.cfg.TrustDimWeights {
		agg += w * e.Dims[i]
	}
	return agg
}

// Edge returns the edge from → to.
func (g *Graph) Edge(from, to agents.AgentID) (*Edge, error) {
	if m, ok := g.out[from]; ok {
		if e, ok := m[to]; ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: edge %d->%d", faults.ErrNotFound, from, to)
}

// Establish creates an edge explicitly. A duplicate upgrades the existing
// edge in place rather than creating a second one.
func (g *Graph) Establish(tick uint64, from, to agents.AgentID, init EdgeInit) (*Edge, error) {
	if from == to {
		return nil, fmt.Errorf("%w: self-edge %d", faults.ErrConflict, from)
	}
	e, err := g.Edge(from, to)
	if err != nil {
		e = g.create(tick, from, to)
		g.bus.Stage(tick, events.StageTrust, events.TrustRelationshipEstablished, map[string]any{
			"from": uint64(from), "to": uint64(to),
		})
	}
	for dim, v := range init.Dims {
		i := config.TrustDimIndex(dim)
		if i < 0 {
			return nil, fmt.Errorf("%w: trust dimension %q", faults.ErrInvalidArgument, dim)
		}
		e.Dims[i] = agents.Clamp01(v)
	}
	if init.Context != "" {
		e.Context = init.Context
	}
	if init.Kind != "" {
		e.Kind = init.Kind
	}
	if init.PropagationWeight > 0 {
		e.PropagationWeight = agents.Clamp01(init.PropagationWeight)
	}
	e.UpdatedTick = tick
	g.refreshNeutral(e, tick)
	return e, nil
}

func (g *Graph) create(tick uint64, from, to agents.AgentID) *Edge {
	e := &Edge{
		From:              from,
		To:                to,
		CreatedTick:       tick,
		UpdatedTick:       tick,
		Trajectory:        agents.NewRing[float64](g.cfg.TrajectoryCap),
		Kind:              KindPersonal,
		PropagationWeight: 1.0,
	}
	for i := range e.Dims {
		e.Dims[i] = 0.5
	}
	if g.out[from] == nil {
		g.out[from] = make(map[agents.AgentID]*Edge)
	}
	g.out[from][to] = e
	if g.in[to] == nil {
		g.in[to] = make(map[agents.AgentID]struct{})
	}
	g.in[to][from] = struct{}{}
	return e
}

// RestoreEdge reinstates an edge from a snapshot without staging events.
func (g *Graph) RestoreEdge(e *Edge) {
	if e.Trajectory == nil {
		e.Trajectory = agents.NewRing[float64](g.cfg.TrajectoryCap)
	}
	if g.out[e.From] == nil {
		g.out[e.From] = make(map[agents.AgentID]*Edge)
	}
	g.out[e.From][e.To] = e
	if g.in[e.To] == nil {
		g.in[e.To] = make(map[agents.AgentID]struct{})
	}
	g.in[e.To][e.From] = struct{}{}
}

// Update applies per-dimension deltas to the edge from → to, creating it
// lazily on first interaction. Returns the signed aggregate change.
func (g *Graph) Update(tick uint64, from, to agents.AgentID, deltas map[string]float64, context string) (float64, *Edge, error) {
	if from == to {
		return 0, nil, fmt.Errorf("%w: self-edge %d", faults.ErrConflict, from)
	}
	for dim := range deltas {
		if config.TrustDimIndex(dim) < 0 {
			return 0, nil, fmt.Errorf("%w: trust dimension %q", faults.ErrInvalidArgument, dim)
		}
	}

	e, err := g.Edge(from, to)
	if err != nil {
		e = g.create(tick, from, to)
		g.bus.Stage(tick, events.StageTrust, events.TrustRelationshipEstablished, map[string]any{
			"from": uint64(from), "to": uint64(to),
		})
	}

	before := g.Aggregate(e)
	// Fixed dimension order keeps staged sanitization events deterministic.
	for i, dim := range config.TrustDimensions {
		d, ok := deltas[dim]
		if !ok {
			continue
		}
		if math.IsNaN(d) || math.IsInf(d, 0) {
			g.bus.Stage(tick, events.StageTrust, events.Sanitized, map[string]any{
				"from": uint64(from), "to": uint64(to), "field": "trust_delta", "dimension": dim,
			})
			continue
		}
		e.Dims[i] = agents.Clamp01(e.Dims[i] + d)
	}
	change := g.Aggregate(e) - before

	e.Interactions++
	e.UpdatedTick = tick
	if context != "" {
		e.Context = context
	}
	e.Trajectory.Push(change)
	g.refreshTrajectoryStats(e)
	g.refreshConfidence(e)
	g.refreshNeutral(e, tick)

	g.bus.Stage(tick, events.StageTrust, events.TrustUpdated, map[string]any{
		"from":      uint64(from),
		"to":        uint64(to),
		"change":    change,
		"aggregate": g.Aggregate(e),
		"context":   context,
	})
	return change, e, nil
}

// applyIndirect applies a uniform clamped delta to all dimensions during a
// cascade. Indirect updates move state but do not count as interactions.
func (g *Graph) applyIndirect(tick uint64, e *Edge, delta float64) {
	for i := range e.Dims {
		e.Dims[i] = agents.Clamp01(e.Dims[i] + delta)
	}
	e.UpdatedTick = tick
	e.Trajectory.Push(delta)
	g.refreshTrajectoryStats(e)
	g.refreshNeutral(e, tick)
}

// refreshTrajectoryStats recomputes volatility (standard deviation of recent
// aggregate deltas) and stability (mode-fraction of delta sign).
func (g *Graph) refreshTrajectoryStats(e *Edge) {
	deltas := e.Trajectory.Items()
	if len(deltas) == 0 {
		e.Volatility, e.Stability = 0, 1
		return
	}
	mean := 0.0
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))

	varsum := 0.0
	pos, neg, zero := 0, 0, 0
	for _, d := range deltas {
		varsum += (d - mean) * (d - mean)
		switch {
		case d > 0:
			pos++
		case d < 0:
			neg++
		default:
			zero++
		}
	}
	e.Volatility = math.Sqrt(varsum / float64(len(deltas)))
	mode := pos
	if neg > mode {
		mode = neg
	}
	if zero > mode {
		mode = zero
	}
	e.Stability = float64(mode) / float64(len(deltas))
}

func (g *Graph) refreshConfidence(e *Edge) {
	saturation := float64(e.Interactions) / (float64(e.Interactions) + 10)
	e.Confidence = saturation * (0.5 + 0.5*e.Stability)
}

func (g *Graph) refreshNeutral(e *Edge, tick uint64) {
	eps := g.cfg.QuiescenceEpsilon
	for _, d := range e.Dims {
		if math.Abs(d-0.5) > eps {
			e.neutralSince = 0
			return
		}
	}
	if e.neutralSince == 0 {
		e.neutralSince = tick
	}
}

// OutgoingEdges returns the edges leaving id, sorted by target for
// deterministic iteration.
func (g *Graph) OutgoingEdges(id agents.AgentID) []*Edge {
	m := g.out[id]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// IncomingEdges returns the edges pointing at id, sorted by source for
// deterministic iteration.
func (g *Graph) IncomingEdges(id agents.AgentID) []*Edge {
	sources := g.in[id]
	if len(sources) == 0 {
		return nil
	}
	out := make([]*Edge, 0, len(sources))
	for from := range sources {
		if e, ok := g.out[from][id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// Neighbors returns the union of inbound and outbound neighbors, sorted.
// The culture engine treats this as the agent's neighborhood.
func (g *Graph) Neighbors(id agents.AgentID) []agents.AgentID {
	seen := make(map[agents.AgentID]struct{})
	for to := range g.out[id] {
		seen[to] = struct{}{}
	}
	for from := range g.in[id] {
		seen[from] = struct{}{}
	}
	out := make([]agents.AgentID, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, m := range g.out {
		n += len(m)
	}
	return n
}

// DropAgent removes every edge touching id.
func (g *Graph) DropAgent(id agents.AgentID) {
	for to := range g.out[id] {
		delete(g.in[to], id)
	}
	delete(g.out, id)
	for from := range g.in[id] {
		delete(g.out[from], id)
	}
	delete(g.in, id)
}

// DecayEdges drifts every dimension toward the neutral 0.5 by the configured
// per-dimension decay rate. Runs on the slow maintenance tick.
func (g *Graph) DecayEdges(tick uint64) {
	for _, from := range g.sortedSources() {
		for _, e := range g.OutgoingEdges(from) {
			for i := range e.Dims {
				rate := g.cfg.TrustDimDecays[i]
				switch {
				case e.Dims[i] > 0.5:
					e.Dims[i] = math.Max(0.5, e.Dims[i]-rate)
				case e.Dims[i] < 0.5:
					e.Dims[i] = math.Min(0.5, e.Dims[i]+rate)
				}
			}
			g.refreshNeutral(e, tick)
		}
	}
}

// ReapQuiescent removes edges that have sat at neutral across all dimensions
// for longer than the configured quiescence period. Returns removed count.
func (g *Graph) ReapQuiescent(tick uint64) int {
	removed := 0
	for _, from := range g.sortedSources() {
		for _, e := range g.OutgoingEdges(from) {
			if e.neutralSince == 0 || tick-e.neutralSince <= g.cfg.QuiescencePeriod {
				continue
			}
			delete(g.out[from], e.To)
			delete(g.in[e.To], from)
			removed++
		}
	}
	return removed
}

func (g *Graph) sortedSources() []agents.AgentID {
	srcs := make([]agents.AgentID, 0, len(g.out))
	for id := range g.out {
		srcs = append(srcs, id)
	}
	sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })
	return srcs
}

// NetworkMeanTrust returns the mean aggregate trust over all inbound edges
// of an agent, or 0.5 when the agent has none.
func (g *Graph) NetworkMeanTrust(id agents.AgentID) float64 {
	sources := g.in[id]
	if len(sources) == 0 {
		return 0.5
	}
	sum, n := 0.0, 0
	for from := range sources {
		if e, ok := g.out[from][id]; ok {
			sum += g.Aggregate(e)
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return sum / float64(n)
}
