package reputation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
)

func testBus() *events.Bus {
	n := 0
	return events.NewBus(64, 64, func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	})
}

func neutralAgent(cfg config.Config, id agents.AgentID) *agents.Agent {
	scores := make([]float64, len(cfg.ReputationCategories))
	for i := range scores {
		scores[i] = 50
	}
	return &agents.Agent{
		ID:         id,
		Scores:     scores,
		RepHistory: agents.NewRing[agents.ReputationChange](cfg.HistoryCap),
	}
}

func newTestEngine(t *testing.T) (*Engine, *agents.Store, *events.Bus, config.Config) {
	t.Helper()
	cfg := config.Default()
	store := agents.NewStore()
	bus := testBus()
	e := New(cfg, store, nil, bus)

	for id := agents.AgentID(1); id <= 3; id++ {
		a := neutralAgent(cfg, id)
		require.NoError(t, store.Register(a))
		e.InitAgent(a)
	}
	return e, store, bus, cfg
}

func TestUpdateAppliesDelta(t *testing.T) {
	e, store, _, cfg := newTestEngine(t)

	require.NoError(t, e.Update(1, 1, 10, "innovation", "test"))

	a, _ := store.Get(1)
	assert.Equal(t, 60.0, a.Scores[cfg.CategoryIndex("innovation")])

	last, ok := a.RepHistory.Last()
	require.True(t, ok)
	assert.Equal(t, 10.0, last.Delta)
	assert.Equal(t, "test", last.Context)
}

func TestUpdateClampsToRange(t *testing.T) {
	e, store, _, cfg := newTestEngine(t)

	require.NoError(t, e.Update(1, 1, 500, "leadership", ""))
	a, _ := store.Get(1)
	assert.Equal(t, 100.0, a.Scores[cfg.CategoryIndex("leadership")])

	require.NoError(t, e.Update(1, 1, -500, "leadership", ""))
	assert.Equal(t, 0.0, a.Scores[cfg.CategoryIndex("leadership")])
}

func TestOverallIsWeightedSum(t *testing.T) {
	e, store, _, cfg := newTestEngine(t)

	require.NoError(t, e.Update(1, 1, 20, "business_integrity", ""))

	a, _ := store.Get(1)
	want := 0.0
	for i, cat := range cfg.ReputationCategories {
		want += cfg.ReputationWeights[cat] * a.Scores[i]
	}
	assert.InDelta(t, want, a.Overall, 1e-9)
}

func TestDeltaRoundTrip(t *testing.T) {
	e, store, _, _ := newTestEngine(t)
	a, _ := store.Get(1)
	before := a.Overall

	require.NoError(t, e.Update(1, 1, 7, "philanthropy", ""))
	require.NoError(t, e.Update(1, 1, -7, "philanthropy", ""))
	assert.InDelta(t, before, a.Overall, 1e-9)
}

func TestInvalidCategoryRejected(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	err := e.Update(1, 1, 5, "bravery", "")
	require.ErrorIs(t, err, faults.ErrInvalidArgument)
}

func TestNaNDeltaSanitized(t *testing.T) {
	e, store, bus, cfg := newTestEngine(t)

	nan := 0.0
	nan /= nan
	require.NoError(t, e.Update(1, 1, nan, "innovation", ""))

	a, _ := store.Get(1)
	assert.Equal(t, 50.0, a.Scores[cfg.CategoryIndex("innovation")])

	out := bus.Flush()
	var sanitized bool
	for _, ev := range out {
		if ev.Type == events.Sanitized {
			sanitized = true
		}
	}
	assert.True(t, sanitized)
}

func TestMilestoneOncePerFlush(t *testing.T) {
	e, _, bus, _ := newTestEngine(t)

	// Several big jumps in one tick cross a tier threshold; exactly one
	// milestone reflects the final tier.
	require.NoError(t, e.Update(1, 1, 80, "business_integrity", ""))
	require.NoError(t, e.Update(1, 1, 80, "financial_reliability", ""))
	require.NoError(t, e.Update(1, 1, 80, "political_influence", ""))
	e.FlushMilestones(1)

	milestones := 0
	for _, ev := range bus.Flush() {
		if ev.Type == events.ReputationMilestone {
			milestones++
			assert.Equal(t, "neutral", ev.Meta["from"])
		}
	}
	assert.Equal(t, 1, milestones)
}

func TestNoMilestoneWithoutTierChange(t *testing.T) {
	e, _, bus, _ := newTestEngine(t)

	require.NoError(t, e.Update(1, 1, 1, "innovation", ""))
	e.FlushMilestones(1)

	for _, ev := range bus.Flush() {
		assert.NotEqual(t, events.ReputationMilestone, ev.Type)
	}
}

func TestDecayDriftsTowardNeutral(t *testing.T) {
	e, store, _, cfg := newTestEngine(t)
	a, _ := store.Get(1)

	hi := cfg.CategoryIndex("leadership")
	lo := cfg.CategoryIndex("philanthropy")
	mid := cfg.CategoryIndex("innovation")
	a.Scores[hi] = 90
	a.Scores[lo] = 10
	a.Scores[mid] = 55

	e.Decay(100)

	assert.Equal(t, 90-cfg.ReputationDecayRate, a.Scores[hi])
	assert.Equal(t, 10+cfg.ReputationDecayRate/2, a.Scores[lo])
	assert.Equal(t, 55.0, a.Scores[mid])
}

func TestDecayStopsAtNeutral(t *testing.T) {
	e, store, _, cfg := newTestEngine(t)
	a, _ := store.Get(1)

	hi := cfg.CategoryIndex("leadership")
	a.Scores[hi] = 60.2
	e.Decay(100)
	assert.GreaterOrEqual(t, a.Scores[hi], 50.0)
}

func TestInheritFromSeedsThirtyPercent(t *testing.T) {
	e, store, _, cfg := newTestEngine(t)

	parent, _ := store.Get(1)
	child, _ := store.Get(2)
	idx := cfg.CategoryIndex("business_integrity")
	parent.Scores[idx] = 90

	e.InheritFrom(child, parent)
	assert.InDelta(t, 62.0, child.Scores[idx], 1e-9)
}

func TestTierTable(t *testing.T) {
	assert.Equal(t, TierLegendary, TierFor(97))
	assert.Equal(t, TierExcellent, TierFor(80))
	assert.Equal(t, TierGood, TierFor(65))
	assert.Equal(t, TierNeutral, TierFor(50))
	assert.Equal(t, TierPoor, TierFor(30))
	assert.Equal(t, TierTerrible, TierFor(12))
	assert.Equal(t, TierCriminal, TierFor(3))
	assert.Less(t, TierRank(TierPoor), TierRank(TierGood))
}
