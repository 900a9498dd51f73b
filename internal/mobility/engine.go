// Package mobility drives class transitions: mobility scoring, upward
// attempts against hardening barriers, forced declines, revolutionary
// tendency contagion, and the population-level revolution check.
package mobility

import (
	"sort"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/entropy"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/reputation"
	"github.com/talgya/polis/internal/trust"
)

// Reason codes recorded on class transitions.
const (
	ReasonPromotion         = "promotion"
	ReasonWealthLoss        = "wealth_loss"
	ReasonReputationDamage  = "reputation_damage"
	ReasonEconomicFailure   = "economic_failure"
	ReasonGeneralDecline    = "general_decline"
	ReasonWealthChange      = "wealth_change"
	ReasonRevolution        = "revolution"
	ReasonRevolutionPromote = "revolution_promotion"
)

const (
	maxBarrier      = 0.8
	barrierStep     = 0.05
	contagionRate   = 0.05
	contagionFloor  = 0.6 // aggregate trust gate for tendency contagion
	connectionsCap  = 20
	criminalPenalty = 15.0
)

// UnionCheck reports whether an agent belongs to a union-kind organization.
type UnionCheck func(agents.AgentID) bool

// Engine is the class-mobility subsystem.
type Engine struct {
	cfg   config.Config
	store *agents.Store
	graph *trust.Graph
	rep   *reputation.Engine
	bus   *events.Bus
	rng   *entropy.Source

	isUnion UnionCheck

	barriers map[[2]int]float64
	progress float64 // revolution progress in [0,1]

	// Invoked on revolution success so the culture engine can apply the
	// revolutionary shift. Wired by the core.
	OnRevolutionSuccess func(tick uint64)
}

// New creates the engine.
func New(cfg config.Config, store *agents.Store, graph *trust.Graph, rep *reputation.Engine, bus *events.Bus, rng *entropy.Source, isUnion UnionCheck) *Engine {
	if isUnion == nil {
		isUnion = func(agents.AgentID) bool { return false }
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		graph:    graph,
		rep:      rep,
		bus:      bus,
		rng:      rng,
		isUnion:  isUnion,
		barriers: make(map[[2]int]float64),
	}
}

// RevolutionProgress returns the last computed mean dissatisfaction.
func (e *Engine) RevolutionProgress() float64 { return e.progress }

// Barrier returns the accumulated extra barrier between two classes.
func (e *Engine) Barrier(from, to int) float64 { return e.barriers[[2]int{from, to}] }

// SetProgress restores revolution progress from a snapshot.
func (e *Engine) SetProgress(p float64) { e.progress = agents.Clamp01(p) }

// Score computes the mobility score in [0,100] for an agent given its wealth
// percentile. Luck is drawn from the engine's stream.
func (e *Engine) Score(a *agents.Agent, wealthPercentile float64) float64 {
	conns := float64(len(e.graph.Neighbors(a.ID)))
	if conns > connectionsCap {
		conns = connectionsCap
	}
	luck := e.rng.Float() * 100

	score := e.cfg.MobilityWeightEdu*a.Education +
		e.cfg.MobilityWeightRep*a.Overall +
		e.cfg.MobilityWeightConn*(conns/connectionsCap)*100 +
		e.cfg.MobilityWeightEcon*wealthPercentile*100 +
		e.cfg.MobilityWeightLuck*luck

	cls := e.cfg.Classes[a.Class]

	// Opportunity advantage, then a privilege modifier that favors agents
	// already higher in the hierarchy.
	score *= 0.7 + 0.6*cls.Opportunity
	top := float64(len(e.cfg.Classes) - 1)
	score *= 0.9 + 0.2*float64(a.Class)/top

	return agents.ClampScore(score)
}

// Tick runs the medium-B mobility pass: per-agent transition decisions, then
// the revolution check.
func (e *Engine) Tick(tick uint64) {
	all := e.store.All()
	percentiles := wealthPercentiles(all)

	for _, a := range all {
		e.decide(tick, a, percentiles[a.ID])
	}
	e.checkRevolution(tick, all, percentiles)
}

func (e *Engine) decide(tick uint64, a *agents.Agent, percentile float64) {
	score := e.Score(a, percentile)
	cls := e.cfg.Classes[a.Class]

	timeIn := tick - a.ClassEnteredTick
	timeScale := 0.5 + float64(timeIn)/float64(e.cfg.Ticks.SlowA)
	if timeScale > 2 {
		timeScale = 2
	}

	if e.rng.Float() > cls.MobilityProbability*(score/100)*timeScale {
		return
	}

	wealthClass := e.cfg.ClassIndexForWealth(a.Wealth)
	switch {
	case wealthClass > a.Class && score > 60:
		e.AttemptUpward(tick, a, score)
	case wealthClass < a.Class || score < 30:
		e.forceDownward(tick, a, score, wealthClass)
	case score > 50:
		e.AttemptUpward(tick, a, score)
	}
}

// AttemptUpward tries to promote the agent one class. Promotion past the top
// class is a no-op.
func (e *Engine) AttemptUpward(tick uint64, a *agents.Agent, score float64) bool {
	to := a.Class + 1
	if to >= len(e.cfg.Classes) {
		return false
	}

	prob := (score / 100) * (1 - e.Barrier(a.Class, to))
	if a.Wealth < e.cfg.Classes[to].WealthFloor {
		prob *= 1 - 0.3
	}
	upperMiddle := len(e.cfg.Classes) - 2
	if a.Education < 70 && to >= upperMiddle {
		prob *= 1 - 0.5
	}
	middle := len(e.cfg.Classes) / 2
	if len(e.graph.Neighbors(a.ID)) < 10 && to >= middle {
		prob *= 1 - 0.7
	}

	success := e.rng.Float() < prob
	a.MobilityHistory.Push(agents.MobilityAttempt{
		Tick: tick, From: a.Class, To: to, Score: score, Success: success, Reason: ReasonPromotion,
	})

	if !success {
		e.hardenBarrier(a.Class, to)
		e.bus.Stage(tick, events.StageMobility, events.MobilityAttemptFailed, map[string]any{
			"agent": uint64(a.ID), "from": a.Class, "to": to, "score": score,
			"barrier": e.Barrier(a.Class, to),
		})
		e.bus.Stage(tick, events.StageMobility, events.OpportunityMissed, map[string]any{
			"agent": uint64(a.ID), "class": a.Class,
		})
		return false
	}

	from := a.Class
	e.store.SetClass(a.ID, to, tick, ReasonPromotion)
	e.bus.Stage(tick, events.StageMobility, events.OpportunitySuccess, map[string]any{
		"agent": uint64(a.ID), "from": from, "to": to, "score": score,
	})
	e.stageClassChange(tick, a, from, to, ReasonPromotion)
	return true
}

func (e *Engine) forceDownward(tick uint64, a *agents.Agent, score float64, wealthClass int) {
	to := a.Class - 1
	if to < 0 {
		return
	}

	reason := ReasonGeneralDecline
	switch {
	case wealthClass < a.Class:
		reason = ReasonWealthLoss
	case a.Overall < 30:
		reason = ReasonReputationDamage
	case score < 15:
		reason = ReasonEconomicFailure
	}

	from := a.Class
	e.store.SetClass(a.ID, to, tick, reason)
	a.MobilityHistory.Push(agents.MobilityAttempt{
		Tick: tick, From: from, To: to, Score: score, Success: true, Reason: reason,
	})
	e.stageClassChange(tick, a, from, to, reason)
}

func (e *Engine) hardenBarrier(from, to int) {
	key := [2]int{from, to}
	b := e.barriers[key] + barrierStep
	if b > maxBarrier {
		b = maxBarrier
	}
	e.barriers[key] = b
}

func (e *Engine) stageClassChange(tick uint64, a *agents.Agent, from, to int, reason string) {
	e.bus.Stage(tick, events.StageMobility, events.ClassChange, map[string]any{
		"agent":  uint64(a.ID),
		"from":   e.cfg.Classes[from].Name,
		"to":     e.cfg.Classes[to].Name,
		"reason": reason,
	})
}

// Contagion bleeds revolutionary tendency along high-trust edges. Runs on
// the medium-A tick.
func (e *Engine) Contagion(tick uint64) {
	for _, a := range e.store.All() {
		for _, edge := range e.graph.OutgoingEdges(a.ID) {
			if e.graph.Aggregate(edge) <= contagionFloor {
				continue
			}
			target, err := e.store.Get(edge.To)
			if err != nil {
				continue
			}
			if a.RevolutionaryTendency > target.RevolutionaryTendency {
				target.RevolutionaryTendency = agents.Clamp01(
					target.RevolutionaryTendency + contagionRate*(a.RevolutionaryTendency-target.RevolutionaryTendency))
			}
		}
	}
}

// wealthPercentiles assigns each agent the fraction of the population with
// strictly lower wealth.
func wealthPercentiles(all []*agents.Agent) map[agents.AgentID]float64 {
	out := make(map[agents.AgentID]float64, len(all))
	if len(all) == 0 {
		return out
	}
	sorted := make([]*agents.Agent, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Wealth < sorted[j].Wealth })

	n := float64(len(sorted))
	for i, a := range sorted {
		// Agents with equal wealth share the percentile of the first of them.
		if i > 0 && sorted[i].Wealth == sorted[i-1].Wealth {
			out[a.ID] = out[sorted[i-1].ID]
			continue
		}
		out[a.ID] = float64(i) / n
	}
	return out
}

// workingClassIndex finds the rung named "working", falling back to the
// bottom rung when the table uses other names.
func (e *Engine) workingClassIndex() int {
	for i, cl := range e.cfg.Classes {
		if cl.Name == "working" {
			return i
		}
	}
	return 0
}
