// Package reputation maintains per-agent category scores, the derived
// overall score and business metrics, tier milestones, natural decay, and the
// one-hop network bleed of direct updates.
package reputation

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
)

// Well-known categories consulted by the derived metrics. Absent categories
// simply drop out of the corresponding formula.
const (
	catBusinessIntegrity  = "business_integrity"
	catFinancialReliable  = "financial_reliability"
	catSocialCooperation  = "social_cooperation"
	catInnovation         = "innovation"
	catLeadership         = "leadership"
	catCriminalActivity   = "criminal_activity"
	catPoliticalInfluence = "political_influence"
)

// Neighbor is one outgoing trust edge summarized for the bleed pass.
type Neighbor struct {
	ID        agents.AgentID
	Aggregate float64
}

// NeighborSource exposes the trust graph's outgoing edges. The reputation
// engine never touches edge state directly.
type NeighborSource interface {
	Outgoing(id agents.AgentID) []Neighbor
}

// Engine is the reputation subsystem.
type Engine struct {
	cfg       config.Config
	store     *agents.Store
	neighbors NeighborSource
	bus       *events.Bus

	// Tier already announced per agent; milestones compare against this at
	// flush time so one tick emits at most one milestone per agent.
	announced map[agents.AgentID]string
	touched   map[agents.AgentID]struct{}
}

// New creates the engine.
func New(cfg config.Config, store *agents.Store, neighbors NeighborSource, bus *events.Bus) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		neighbors: neighbors,
		bus:       bus,
		announced: make(map[agents.AgentID]string),
		touched:   make(map[agents.AgentID]struct{}),
	}
}

// InitAgent computes derived reputation state for a fresh agent and records
// its starting tier as already announced.
func (e *Engine) InitAgent(a *agents.Agent) {
	e.recompute(a)
	e.announced[a.ID] = a.Tier
}

// Forget drops per-agent bookkeeping on deregistration.
func (e *Engine) Forget(id agents.AgentID) {
	delete(e.announced, id)
	delete(e.touched, id)
}

// Update applies a direct reputation delta.
func (e *Engine) Update(tick uint64, id agents.AgentID, delta float64, category, context string) error {
	idx := e.cfg.CategoryIndex(category)
	if idx < 0 {
		return fmt.Errorf("%w: invalid_category %q", faults.ErrInvalidArgument, category)
	}
	a, err := e.store.Get(id)
	if err != nil {
		return err
	}

	e.apply(tick, a, idx, delta, context)

	// Network bleed: one hop, attenuated, cooperation category only. Applied
	// without recursion so cascading feedback cannot form.
	if math.Abs(delta) >= 1 {
		coopIdx := e.cfg.CategoryIndex(catSocialCooperation)
		if coopIdx >= 0 && e.neighbors != nil {
			for _, n := range e.neighbors.Outgoing(id) {
				if n.Aggregate <= e.cfg.BleedThreshold {
					continue
				}
				target, err := e.store.Get(n.ID)
				if err != nil {
					continue
				}
				e.apply(tick, target, coopIdx, delta*e.cfg.BleedFactor, "network_bleed")
			}
		}
	}
	return nil
}

// Apply applies a delta without triggering network bleed. Used by the other
// engines for consequence adjustments (revolution outcomes, incidents).
func (e *Engine) Apply(tick uint64, id agents.AgentID, category string, delta float64, context string) error {
	idx := e.cfg.CategoryIndex(category)
	if idx < 0 {
		return fmt.Errorf("%w: invalid_category %q", faults.ErrInvalidArgument, category)
	}
	a, err := e.store.Get(id)
	if err != nil {
		return err
	}
	e.apply(tick, a, idx, delta, context)
	return nil
}

// apply clamps the delta into the category score, refreshes derived state,
// stages the update event, and appends to the agent's history.
func (e *Engine) apply(tick uint64, a *agents.Agent, idx int, delta float64, context string) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		e.bus.Stage(tick, events.StageReputation, events.Sanitized, map[string]any{
			"agent": uint64(a.ID), "field": "reputation_delta",
		})
		delta = 0
	}

	before := a.Scores[idx]
	a.Scores[idx] = agents.ClampScore(before + delta)
	applied := a.Scores[idx] - before

	e.recompute(a)
	a.LastReputationTick = tick
	a.RepHistory.Push(agents.ReputationChange{
		Tick:     tick,
		Category: e.cfg.ReputationCategories[idx],
		Delta:    applied,
		Context:  context,
	})
	e.touched[a.ID] = struct{}{}

	e.bus.Stage(tick, events.StageReputation, events.ReputationUpdated, map[string]any{
		"agent":    uint64(a.ID),
		"category": e.cfg.ReputationCategories[idx],
		"delta":    applied,
		"score":    a.Scores[idx],
		"overall":  a.Overall,
		"context":  context,
	})
}

// recompute refreshes the overall score, tier, and derived business metrics.
func (e *Engine) recompute(a *agents.Agent) {
	overall := 0.0
	for i, cat := range e.cfg.ReputationCategories {
		overall += e.cfg.ReputationWeights[cat] * a.Scores[i]
	}
	a.Overall = agents.ClampScore(overall)
	a.Tier = TierFor(a.Overall)

	score := func(cat string) (float64, bool) {
		i := e.cfg.CategoryIndex(cat)
		if i < 0 {
			return 0, false
		}
		return a.Scores[i], true
	}

	// Trust level: mean of the cooperation-adjacent categories minus how far
	// criminal activity sits from neutral.
	sum, n := 0.0, 0
	for _, cat := range []string{catBusinessIntegrity, catFinancialReliable, catSocialCooperation} {
		if v, ok := score(cat); ok {
			sum += v
			n++
		}
	}
	trustLevel := 0.0
	if n > 0 {
		trustLevel = sum / float64(n)
	}
	if crim, ok := score(catCriminalActivity); ok {
		trustLevel -= math.Abs(crim - 50)
	}
	a.TrustLevel = agents.ClampScore(trustLevel)

	// Creditworthiness: 60% financial, 40% integrity, small overall bonus.
	fin, _ := score(catFinancialReliable)
	integ, _ := score(catBusinessIntegrity)
	a.Creditworthiness = agents.ClampScore(0.6*fin + 0.4*integ + 0.05*a.Overall)

	// Partnership attractiveness: leadership + innovation + integrity with a
	// bounded network-influence bonus.
	lead, _ := score(catLeadership)
	innov, _ := score(catInnovation)
	bonus := 0.0
	if e.neighbors != nil {
		bonus = float64(len(e.neighbors.Outgoing(a.ID)))
		if bonus > 10 {
			bonus = 10
		}
	}
	a.PartnershipAttractiveness = agents.ClampScore(0.3*lead + 0.3*innov + 0.4*integ + bonus)
}

// FlushMilestones stages one milestone per agent whose tier changed since the
// last flush. The milestone reflects the final tier for the tick, not every
// intermediate crossing.
func (e *Engine) FlushMilestones(tick uint64) {
	ids := make([]agents.AgentID, 0, len(e.touched))
	for id := range e.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		a, err := e.store.Get(id)
		if err != nil {
			continue
		}
		prev := e.announced[id]
		if a.Tier != prev {
			e.bus.Stage(tick, events.StageReputation, events.ReputationMilestone, map[string]any{
				"agent":   uint64(id),
				"from":    prev,
				"to":      a.Tier,
				"overall": a.Overall,
			})
			e.announced[id] = a.Tier
		}
	}
	e.touched = make(map[agents.AgentID]struct{})
}

// Decay runs the slow natural-decay pass: high scores drift toward 50, low
// scores recover toward 50 at half the rate.
func (e *Engine) Decay(tick uint64) {
	rate := e.cfg.ReputationDecayRate
	for _, a := range e.store.All() {
		changed := false
		for i := range a.Scores {
			s := a.Scores[i]
			switch {
			case s > 60:
				s -= rate
				if s < 50 {
					s = 50
				}
			case s < 40:
				s += rate / 2
				if s > 50 {
					s = 50
				}
			default:
				continue
			}
			if s != a.Scores[i] {
				a.RepHistory.Push(agents.ReputationChange{
					Tick:     tick,
					Category: e.cfg.ReputationCategories[i],
					Delta:    s - a.Scores[i],
					Context:  "natural_decay",
				})
				a.Scores[i] = s
				changed = true
			}
		}
		if changed {
			e.recompute(a)
			a.LastReputationTick = tick
			e.touched[a.ID] = struct{}{}
			slog.Debug("reputation decay", "agent", a.ID, "overall", a.Overall, "reason", "natural_decay")
		}
	}
}

// InheritFrom seeds a child's categories with 30% of the parent's deviation
// from neutral.
func (e *Engine) InheritFrom(child, parent *agents.Agent) {
	for i := range child.Scores {
		child.Scores[i] = agents.ClampScore(child.Scores[i] + 0.3*(parent.Scores[i]-50))
	}
	e.recompute(child)
	e.announced[child.ID] = child.Tier
}
