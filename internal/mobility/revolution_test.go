package mobility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/events"
)

// threeClassConfig keeps the revolution arithmetic easy to follow.
func threeClassConfig() config.Config {
	cfg := config.Default()
	cfg.Classes = []config.ClassSpec{
		{Name: "working", WealthFloor: 0, Opportunity: 0.3, MobilityProbability: 0.1},
		{Name: "middle", WealthFloor: 10_000, Opportunity: 0.5, MobilityProbability: 0.1},
		{Name: "upper", WealthFloor: 100_000, Opportunity: 0.9, MobilityProbability: 0.05},
	}
	return cfg
}

func TestRevolutionSuccessRedistributes(t *testing.T) {
	f := newFixture(t, threeClassConfig())

	var participants []*agents.Agent
	for id := agents.AgentID(1); id <= 20; id++ {
		participants = append(participants, f.addAgent(t, id, 100, 1.0))
	}
	rich := f.addAgent(t, 100, 1_000_000, 0)

	totalBefore := rich.Wealth
	for _, p := range participants {
		totalBefore += p.Wealth
	}

	var shifted bool
	f.eng.OnRevolutionSuccess = func(uint64) { shifted = true }
	f.eng.revolutionSuccess(50, f.store.All(), participants)

	// 60% of upper wealth seized, demotion one rung.
	assert.InDelta(t, 400_000, rich.Wealth, 1e-6)
	assert.Equal(t, 1, rich.Class)
	last, ok := rich.ClassHistory.Last()
	require.True(t, ok)
	assert.Equal(t, ReasonRevolution, last.Reason)

	// The seized pool splits evenly and fervor subsides.
	share := 600_000.0 / 20
	promoted := 0
	for _, p := range participants {
		assert.InDelta(t, 0.3, p.RevolutionaryTendency, 1e-9)
		if p.Class == 2 {
			promoted++
			assert.InDelta(t, 100+share, p.Wealth, 1e-6)
		}
	}
	// A tenth of the participants seize the vacated top rung.
	assert.Equal(t, 2, promoted)

	// Wealth is conserved through the redistribution.
	totalAfter := rich.Wealth
	for _, p := range participants {
		totalAfter += p.Wealth
	}
	assert.InDelta(t, totalBefore, totalAfter, 1e-6)

	// Political influence of the demoted collapses.
	polIdx := f.cfg.CategoryIndex("political_influence")
	assert.InDelta(t, 10.0, rich.Scores[polIdx], 1e-9)

	assert.True(t, shifted)
	assert.Zero(t, f.eng.RevolutionProgress())

	var outcome bool
	for _, ev := range f.bus.Flush() {
		if ev.Type == events.RevolutionOutcome {
			outcome = true
			assert.Equal(t, "success", ev.Meta["outcome"])
		}
	}
	assert.True(t, outcome)
}

func TestRevolutionFailurePunishes(t *testing.T) {
	f := newFixture(t, threeClassConfig())

	var participants []*agents.Agent
	for id := agents.AgentID(1); id <= 10; id++ {
		participants = append(participants, f.addAgent(t, id, 1000, 0.8))
	}

	f.eng.progress = 0.9
	f.eng.revolutionFailure(50, participants)

	marked := 0
	crimIdx := f.cfg.CategoryIndex("criminal_activity")
	for _, p := range participants {
		assert.InDelta(t, 800, p.Wealth, 1e-9)
		assert.InDelta(t, 0.9, p.RevolutionaryTendency, 1e-9)
		if p.Scores[crimIdx] > 50 {
			marked++
		}
	}
	// A fifth of the participants are marked criminals.
	assert.Equal(t, 2, marked)
	assert.InDelta(t, 0.63, f.eng.RevolutionProgress(), 1e-9)
}

func TestRevolutionProgressBelowThresholdNoUprising(t *testing.T) {
	f := newFixture(t, threeClassConfig())
	for id := agents.AgentID(1); id <= 5; id++ {
		f.addAgent(t, id, 100, 0.1) // content workers
	}
	rich := f.addAgent(t, 100, 1_000_000, 0)

	all := f.store.All()
	f.eng.checkRevolution(10, all, wealthPercentiles(all))

	assert.Less(t, f.eng.RevolutionProgress(), f.cfg.RevolutionThreshold)
	assert.Equal(t, 2, rich.Class)
	for _, ev := range f.bus.Flush() {
		assert.NotEqual(t, events.RevolutionOutcome, ev.Type)
	}
}

func TestRevolutionProgressIgnoresOtherClasses(t *testing.T) {
	f := newFixture(t, threeClassConfig())
	// Only middle/upper agents: no working class means zero progress.
	f.addAgent(t, 1, 50_000, 1.0)
	f.addAgent(t, 2, 500_000, 1.0)

	all := f.store.All()
	f.eng.checkRevolution(10, all, wealthPercentiles(all))
	assert.Zero(t, f.eng.RevolutionProgress())
}
