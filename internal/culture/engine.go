// Package culture evolves per-agent cultural vectors through neighbor
// influence and mutation, aggregates them into a smoothed global culture,
// detects shifts, and manages era transitions.
package culture

import (
	"math"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/entropy"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/trust"
)

// Shift magnitude classes.
const (
	ShiftMinor    = "minor"
	ShiftModerate = "moderate"
	ShiftMajor    = "major"
)

// Engine is the cultural evolution subsystem.
type Engine struct {
	cfg   config.Config
	store *agents.Store
	graph *trust.Graph
	bus   *events.Bus
	rng   *entropy.Source

	global   []float64
	prevMean []float64

	eras       []Era
	generation uint64
}

// New creates the engine with the global culture at the midpoint and an
// opening era.
func New(cfg config.Config, store *agents.Store, graph *trust.Graph, bus *events.Bus, rng *entropy.Source) *Engine {
	dims := len(cfg.CulturalDimensions)
	global := make([]float64, dims)
	for d := range global {
		global[d] = 0.5
	}
	e := &Engine{
		cfg:    cfg,
		store:  store,
		graph:  graph,
		bus:    bus,
		rng:    rng,
		global: global,
	}
	e.eras = []Era{e.newEra(0)}
	return e
}

// Global returns a copy of the global cultural vector.
func (e *Engine) Global() []float64 {
	out := make([]float64, len(e.global))
	copy(out, e.global)
	return out
}

// Generation returns the generation counter.
func (e *Engine) Generation() uint64 { return e.generation }

// AdvanceGeneration increments the counter. Called by the generational
// wealth-transfer pass.
func (e *Engine) AdvanceGeneration() { e.generation++ }

// Restore reinstates snapshot state.
func (e *Engine) Restore(global []float64, generation uint64, eras []Era) {
	if len(global) == len(e.global) {
		copy(e.global, global)
	}
	e.generation = generation
	if len(eras) > 0 {
		e.eras = eras
	}
}

// Tick runs the medium-A cultural pass.
func (e *Engine) Tick(tick uint64) {
	all := e.store.All()
	if len(all) == 0 {
		return
	}
	dims := len(e.cfg.CulturalDimensions)

	// Pairwise influence. Changes are staged against a read-only view of the
	// population and committed afterwards, so ordering between agents in the
	// same tick cannot leak.
	staged := make([][]float64, len(all))
	for i, a := range all {
		staged[i] = e.influenceFor(a)
	}
	for i, a := range all {
		if staged[i] == nil {
			continue
		}
		for d := 0; d < dims; d++ {
			delta := staged[i][d]
			if delta == 0 {
				continue
			}
			a.Culture[d] = agents.Clamp01(a.Culture[d] + delta)
			a.CultureHistory.Push(agents.CulturalChange{Tick: tick, Dimension: d, Delta: delta})
		}
		a.LastCultureTick = tick
		e.RecomputePreferences(a)
	}

	// Mutation: an occasional uniform perturbation of one dimension.
	for _, a := range all {
		if e.rng.Float() >= e.cfg.MutationRate {
			continue
		}
		d := e.rng.IntN(dims)
		delta := e.rng.Range(-0.1, 0.1)
		a.Culture[d] = agents.Clamp01(a.Culture[d] + delta)
		a.CultureHistory.Push(agents.CulturalChange{Tick: tick, Dimension: d, Delta: delta})
		a.LastCultureTick = tick
		e.RecomputePreferences(a)
	}

	// Trends.
	mean := e.populationMean(all)
	velocity := make([]float64, dims)
	changeVelocity := 0.0
	if e.prevMean != nil {
		for d := range velocity {
			velocity[d] = mean[d] - e.prevMean[d]
			changeVelocity += math.Abs(velocity[d])
		}
		changeVelocity /= float64(dims)
	}
	e.prevMean = mean

	// Global culture update, damped by inertia.
	for d := range e.global {
		e.global[d] = agents.Clamp01(e.global[d] + (1-e.cfg.CulturalInertia)*velocity[d])
	}

	// Shift detection.
	for d, v := range velocity {
		if math.Abs(v) <= e.cfg.ShiftThreshold {
			continue
		}
		e.bus.Stage(tick, events.StageCulture, events.CulturalShift, map[string]any{
			"dimension": e.cfg.CulturalDimensions[d].Name,
			"velocity":  v,
			"magnitude": magnitudeClass(math.Abs(v)),
		})
	}

	e.checkEraTransition(tick, changeVelocity)
}

// influenceFor stages the pairwise-influence deltas for one agent, or nil
// when it has no neighborhood.
func (e *Engine) influenceFor(a *agents.Agent) []float64 {
	neighbors := e.graph.Neighbors(a.ID)
	if len(neighbors) == 0 {
		return nil
	}

	k := 1 + e.rng.IntN(5)
	if k > len(neighbors) {
		k = len(neighbors)
	}
	perm := e.rng.Perm(len(neighbors))

	influencers := make([]*agents.Agent, 0, k)
	for _, idx := range perm[:k] {
		if n, err := e.store.Get(neighbors[idx]); err == nil {
			influencers = append(influencers, n)
		}
	}
	if len(influencers) == 0 {
		return nil
	}

	strength := e.cfg.InfluenceRadius * (1 - a.CulturalResistance)
	dims := len(e.cfg.CulturalDimensions)
	deltas := make([]float64, dims)

	for d := 0; d < dims; d++ {
		sum, weightSum := 0.0, 0.0
		for _, inf := range influencers {
			// Closer cultures weigh more.
			w := (1 - math.Abs(a.Culture[d]-inf.Culture[d])) * inf.CulturalInfluence
			sum += w * inf.Culture[d]
			weightSum += w
		}
		if weightSum == 0 {
			continue
		}
		avg := sum / weightSum
		deltas[d] = (avg - a.Culture[d]) * strength
	}
	return deltas
}

func (e *Engine) populationMean(all []*agents.Agent) []float64 {
	dims := len(e.cfg.CulturalDimensions)
	mean := make([]float64, dims)
	for _, a := range all {
		for d := 0; d < dims; d++ {
			mean[d] += a.Culture[d]
		}
	}
	for d := range mean {
		mean[d] /= float64(len(all))
	}
	return mean
}

// Diversity returns the mean per-dimension variance of the population's
// cultural vectors.
func (e *Engine) Diversity() float64 {
	all := e.store.All()
	if len(all) == 0 {
		return 0
	}
	mean := e.populationMean(all)
	dims := len(mean)
	total := 0.0
	for d := 0; d < dims; d++ {
		varsum := 0.0
		for _, a := range all {
			diff := a.Culture[d] - mean[d]
			varsum += diff * diff
		}
		total += varsum / float64(len(all))
	}
	return total / float64(dims)
}

// RevolutionaryShift applies the configured revolutionary change vector to
// every agent (damped by cultural resistance) and to the global culture,
// then forces an era-transition check.
func (e *Engine) RevolutionaryShift(tick uint64) {
	for _, a := range e.store.All() {
		for d, shift := range e.cfg.RevolutionaryShift {
			delta := shift * (1 - a.CulturalResistance)
			if delta == 0 {
				continue
			}
			a.Culture[d] = agents.Clamp01(a.Culture[d] + delta)
			a.CultureHistory.Push(agents.CulturalChange{Tick: tick, Dimension: d, Delta: delta})
		}
		a.LastCultureTick = tick
		e.RecomputePreferences(a)
	}

	for d, shift := range e.cfg.RevolutionaryShift {
		e.global[d] = agents.Clamp01(e.global[d] + shift)
	}

	e.bus.Stage(tick, events.StageCulture, events.RevolutionaryCulturalShift, map[string]any{
		"shift": append([]float64(nil), e.cfg.RevolutionaryShift...),
	})
	e.checkEraTransition(tick, 0)
}

func magnitudeClass(v float64) string {
	switch {
	case v >= 0.2:
		return ShiftMajor
	case v >= 0.1:
		return ShiftModerate
	}
	return ShiftMinor
}
