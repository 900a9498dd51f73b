// Revolution check and outcomes. Dissatisfaction accumulates across the
// working class; crossing the configured threshold triggers an uprising that
// either redistributes upper-class wealth or is put down.
package mobility

import (
	"log/slog"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/events"
)

// checkRevolution recomputes revolution progress and triggers the procedure
// when it exceeds the threshold.
func (e *Engine) checkRevolution(tick uint64, all []*agents.Agent, percentiles map[agents.AgentID]float64) {
	working := e.workingClassIndex()

	sum, n := 0.0, 0
	for _, a := range all {
		if a.Class != working {
			continue
		}
		sum += (1 - percentiles[a.ID]) * a.RevolutionaryTendency
		n++
	}
	if n == 0 {
		e.progress = 0
		return
	}
	e.progress = agents.Clamp01(sum / float64(n))
	if e.progress <= e.cfg.RevolutionThreshold {
		return
	}

	e.runRevolution(tick, all, working)
}

func (e *Engine) runRevolution(tick uint64, all []*agents.Agent, working int) {
	var participants []*agents.Agent
	workingCount := 0
	for _, a := range all {
		if a.Class == working {
			workingCount++
			if a.RevolutionaryTendency >= e.cfg.ParticipationFloor {
				participants = append(participants, a)
			}
		}
	}
	if len(participants) == 0 {
		return
	}

	unionCount := 0
	for _, p := range participants {
		if e.isUnion(p.ID) {
			unionCount++
		}
	}
	workingFraction := float64(workingCount) / float64(len(all))
	unionFraction := float64(unionCount) / float64(len(participants))

	successProb := 2*workingFraction + 0.3*unionFraction + e.rng.Range(0, 0.2)
	if successProb > 0.9 {
		successProb = 0.9
	}
	success := e.rng.Float() < successProb

	slog.Info("revolution triggered",
		"tick", tick,
		"progress", e.progress,
		"participants", len(participants),
		"success_prob", successProb,
		"success", success,
	)

	if success {
		e.revolutionSuccess(tick, all, participants)
	} else {
		e.revolutionFailure(tick, participants)
	}
}

func (e *Engine) revolutionSuccess(tick uint64, all []*agents.Agent, participants []*agents.Agent) {
	top := len(e.cfg.Classes) - 1

	// Seize 60% of upper-class wealth and demote every holder one class.
	pool := 0.0
	demoted := 0
	for _, a := range all {
		if a.Class != top {
			continue
		}
		seized := a.Wealth * 0.6
		a.Wealth -= seized
		pool += seized

		from := a.Class
		e.store.SetClass(a.ID, top-1, tick, ReasonRevolution)
		e.stageClassChange(tick, a, from, top-1, ReasonRevolution)
		demoted++

		if idx := e.cfg.CategoryIndex("political_influence"); idx >= 0 {
			a.Scores[idx] = agents.ClampScore(a.Scores[idx] * 0.2)
		}
	}

	// Divide the pool equally among participants; their fervor subsides.
	share := pool / float64(len(participants))
	for _, p := range participants {
		p.Wealth += share
		p.RevolutionaryTendency = agents.Clamp01(p.RevolutionaryTendency * 0.3)
	}

	// A tenth of the participants seize the vacated top rung.
	promoted := len(participants) / 10
	perm := e.rng.Perm(len(participants))
	for i := 0; i < promoted; i++ {
		p := participants[perm[i]]
		from := p.Class
		e.store.SetClass(p.ID, top, tick, ReasonRevolutionPromote)
		e.stageClassChange(tick, p, from, top, ReasonRevolutionPromote)
	}

	e.progress = 0
	e.bus.Stage(tick, events.StageMobility, events.RevolutionOutcome, map[string]any{
		"outcome":       "success",
		"participants":  len(participants),
		"demoted":       demoted,
		"promoted":      promoted,
		"redistributed": pool,
	})

	if e.OnRevolutionSuccess != nil {
		e.OnRevolutionSuccess(tick)
	}
}

func (e *Engine) revolutionFailure(tick uint64, participants []*agents.Agent) {
	criminalIdx := e.cfg.CategoryIndex("criminal_activity")

	// Every fifth participant, in a seeded shuffle, is marked a criminal.
	marked := len(participants) / 5
	perm := e.rng.Perm(len(participants))
	markedSet := make(map[agents.AgentID]struct{}, marked)
	for i := 0; i < marked; i++ {
		markedSet[participants[perm[i]].ID] = struct{}{}
	}

	for _, p := range participants {
		p.Wealth *= 0.8
		p.RevolutionaryTendency = agents.Clamp01(p.RevolutionaryTendency + 0.1)
		if _, ok := markedSet[p.ID]; ok && criminalIdx >= 0 {
			e.rep.Apply(tick, p.ID, "criminal_activity", criminalPenalty, "revolution_failure")
		}
	}

	e.progress *= 0.7
	e.bus.Stage(tick, events.StageMobility, events.RevolutionOutcome, map[string]any{
		"outcome":      "failure",
		"participants": len(participants),
		"marked":       marked,
	})
}
