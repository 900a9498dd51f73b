package mobility

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/entropy"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/reputation"
	"github.com/talgya/polis/internal/trust"
)

func testBus() *events.Bus {
	n := 0
	return events.NewBus(256, 256, func() string {
		n++
		return fmt.Sprintf("ev-%d", n)
	})
}

type fixture struct {
	cfg   config.Config
	store *agents.Store
	graph *trust.Graph
	rep   *reputation.Engine
	bus   *events.Bus
	eng   *Engine
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	f := &fixture{cfg: cfg, store: agents.NewStore(), bus: testBus()}
	f.graph = trust.NewGraph(cfg, f.bus)
	f.rep = reputation.New(cfg, f.store, nil, f.bus)
	f.eng = New(cfg, f.store, f.graph, f.rep, f.bus, entropy.NewSource(7).Stream("mobility"), nil)
	return f
}

func (f *fixture) addAgent(t *testing.T, id agents.AgentID, wealth float64, tendency float64) *agents.Agent {
	t.Helper()
	scores := make([]float64, len(f.cfg.ReputationCategories))
	for i := range scores {
		scores[i] = 50
	}
	a := &agents.Agent{
		ID:                    id,
		Wealth:                wealth,
		Class:                 f.cfg.ClassIndexForWealth(wealth),
		Education:             50,
		Scores:                scores,
		RevolutionaryTendency: tendency,
		RepHistory:            agents.NewRing[agents.ReputationChange](f.cfg.HistoryCap),
		MobilityHistory:       agents.NewRing[agents.MobilityAttempt](f.cfg.HistoryCap),
		ClassHistory:          agents.NewRing[agents.ClassChange](f.cfg.HistoryCap),
	}
	require.NoError(t, f.store.Register(a))
	f.rep.InitAgent(a)
	return a
}

func TestBarrierHardensOnFailureUpToCap(t *testing.T) {
	f := newFixture(t, config.Default())

	for i := 0; i < 20; i++ {
		f.eng.hardenBarrier(1, 2)
	}
	assert.InDelta(t, maxBarrier, f.eng.Barrier(1, 2), 1e-9)
	// Other transitions are untouched.
	assert.Zero(t, f.eng.Barrier(0, 1))
}

func TestFailedAttemptStagesEventsAndHardens(t *testing.T) {
	f := newFixture(t, config.Default())
	a := f.addAgent(t, 1, 500, 0)

	// A zero score cannot succeed: probability is zero.
	ok := f.eng.AttemptUpward(1, a, 0)
	assert.False(t, ok)
	assert.InDelta(t, barrierStep, f.eng.Barrier(0, 1), 1e-9)

	var failed, missed bool
	for _, ev := range f.bus.Flush() {
		switch ev.Type {
		case events.MobilityAttemptFailed:
			failed = true
		case events.OpportunityMissed:
			missed = true
		}
	}
	assert.True(t, failed)
	assert.True(t, missed)

	last, okLast := a.MobilityHistory.Last()
	require.True(t, okLast)
	assert.False(t, last.Success)
}

func TestAttemptPastTopClassIsNoop(t *testing.T) {
	f := newFixture(t, config.Default())
	a := f.addAgent(t, 1, 5_000_000, 0)
	require.Equal(t, len(f.cfg.Classes)-1, a.Class)

	assert.False(t, f.eng.AttemptUpward(1, a, 100))
	assert.Zero(t, a.MobilityHistory.Len())
}

func TestForceDownwardReasons(t *testing.T) {
	f := newFixture(t, config.Default())
	a := f.addAgent(t, 1, 50_000, 0) // middle

	// Wealth collapsed below the class bracket.
	f.eng.forceDownward(5, a, 40, 0)
	last, ok := a.MobilityHistory.Last()
	require.True(t, ok)
	assert.Equal(t, ReasonWealthLoss, last.Reason)
	assert.Equal(t, 1, a.Class)
}

func TestWealthPercentilesTiesShare(t *testing.T) {
	f := newFixture(t, config.Default())
	a1 := f.addAgent(t, 1, 100, 0)
	a2 := f.addAgent(t, 2, 100, 0)
	a3 := f.addAgent(t, 3, 900, 0)

	p := wealthPercentiles(f.store.All())
	assert.Equal(t, p[a1.ID], p[a2.ID])
	assert.Greater(t, p[a3.ID], p[a1.ID])
}

func TestContagionBleedsAlongHighTrustEdges(t *testing.T) {
	f := newFixture(t, config.Default())
	hot := f.addAgent(t, 1, 500, 1.0)
	cold := f.addAgent(t, 2, 500, 0.0)

	strong := map[string]float64{
		"competence":     0.9,
		"benevolence":    0.9,
		"integrity":      0.9,
		"predictability": 0.9,
		"transparency":   0.9,
	}
	_, err := f.graph.Establish(1, hot.ID, cold.ID, trust.EdgeInit{Dims: strong})
	require.NoError(t, err)

	f.eng.Contagion(2)
	assert.InDelta(t, contagionRate, cold.RevolutionaryTendency, 1e-9)

	// Tendency never flows from cooler to hotter.
	f.eng.Contagion(3)
	assert.Equal(t, 1.0, hot.RevolutionaryTendency)
}

func TestContagionIgnoresWeakEdges(t *testing.T) {
	f := newFixture(t, config.Default())
	hot := f.addAgent(t, 1, 500, 1.0)
	cold := f.addAgent(t, 2, 500, 0.0)

	// A neutral edge sits at 0.5 aggregate, under the contagion floor.
	_, err := f.graph.Establish(1, hot.ID, cold.ID, trust.EdgeInit{})
	require.NoError(t, err)

	f.eng.Contagion(2)
	assert.Zero(t, cold.RevolutionaryTendency)
}

func TestWorkingClassIndexFallsBackToBottom(t *testing.T) {
	cfg := config.Default()
	f := newFixture(t, cfg)
	assert.Equal(t, 1, f.eng.workingClassIndex()) // named rung

	cfg.Classes = []config.ClassSpec{
		{Name: "low", WealthFloor: 0, MobilityProbability: 0.1},
		{Name: "high", WealthFloor: 1000, MobilityProbability: 0.1},
	}
	f2 := newFixture(t, cfg)
	assert.Equal(t, 0, f2.eng.workingClassIndex())
}
