package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
	"github.com/talgya/polis/internal/mobility"
	"github.com/talgya/polis/internal/trust"
)

// fastConfig shrinks the tick cadences so every pass fires within a short
// run.
func fastConfig() config.Config {
	cfg := config.Default()
	cfg.Ticks = config.Ticks{MediumA: 3, MediumB: 5, SlowA: 10, SlowB: 20}
	return cfg
}

// runScenario drives one core through a fixed command sequence and returns
// the committed event stream.
func runScenario(t *testing.T, cfg config.Config) []events.Event {
	t.Helper()
	c := New(cfg)

	ids, err := c.SpawnPopulation(15)
	require.NoError(t, err)
	require.Len(t, ids, 15)

	for i := range ids {
		require.NoError(t, c.EstablishTrust(ids[i], ids[(i+1)%len(ids)], trust.EdgeInit{
			Kind:    trust.KindPersonal,
			Context: "ring",
		}))
	}

	_, err = c.UpdateTrust(ids[0], ids[1], map[string]float64{
		"integrity":  0.4,
		"competence": 0.4,
	}, "audit")
	require.NoError(t, err)

	require.NoError(t, c.UpdateReputation(ids[2], 12, "leadership", "election"))
	require.NoError(t, c.ReportIncident(ids[3], "business_integrity", 0.6, "fraudulent invoice"))

	for i := 0; i < 40; i++ {
		require.NoError(t, c.TickOnce())
	}
	return c.RecentEvents(0)
}

func TestSameSeedSameEventStream(t *testing.T) {
	cfg := fastConfig()
	first := runScenario(t, cfg)
	second := runScenario(t, cfg)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second) // identifiers, order, and payloads all match
}

func TestDifferentSeedDiverges(t *testing.T) {
	a := fastConfig()
	b := fastConfig()
	b.Runtime.Seed = 7777

	first := runScenario(t, a)
	second := runScenario(t, b)
	assert.NotEqual(t, first, second)
}

func TestSetWealthEmitsSingleClassChange(t *testing.T) {
	c := New(config.Default())
	id, err := c.RegisterAgent(agents.Init{Wealth: 100})
	require.NoError(t, err)

	// Jumping several brackets still records one transition.
	require.NoError(t, c.SetWealth(id, 250_000))

	changes := 0
	for _, ev := range c.RecentEvents(0) {
		if ev.Type == events.ClassChange {
			changes++
			assert.Equal(t, mobility.ReasonWealthChange, ev.Meta["reason"])
		}
	}
	assert.Equal(t, 1, changes)

	p, err := c.AgentProfile(id)
	require.NoError(t, err)
	assert.Equal(t, c.Config().ClassIndexForWealth(250_000), p.Agent.Class)
	last, ok := p.Agent.ClassHistory.Last()
	require.True(t, ok)
	assert.Equal(t, mobility.ReasonWealthChange, last.Reason)

	// Movement inside the same bracket is silent.
	require.NoError(t, c.SetWealth(id, 260_000))
	total := 0
	for _, ev := range c.RecentEvents(0) {
		if ev.Type == events.ClassChange {
			total++
		}
	}
	assert.Equal(t, 1, total)
}

func TestSetWealthRejectsNonFinite(t *testing.T) {
	c := New(config.Default())
	id, err := c.RegisterAgent(agents.Init{})
	require.NoError(t, err)

	require.ErrorIs(t, c.SetWealth(id, math.NaN()), faults.ErrInvalidArgument)
	require.ErrorIs(t, c.SetWealth(id, math.Inf(1)), faults.ErrInvalidArgument)
}

func TestRegisterAgentInheritsFromParent(t *testing.T) {
	c := New(config.Default())
	parent, err := c.RegisterAgent(agents.Init{Reputation: map[string]float64{
		"business_integrity": 90,
		"leadership":         90,
	}})
	require.NoError(t, err)

	child, err := c.RegisterAgent(agents.Init{Parent: &parent})
	require.NoError(t, err)
	orphan, err := c.RegisterAgent(agents.Init{})
	require.NoError(t, err)

	cp, err := c.AgentProfile(child)
	require.NoError(t, err)
	op, err := c.AgentProfile(orphan)
	require.NoError(t, err)
	assert.Greater(t, cp.Agent.Overall, op.Agent.Overall)
}

func TestRegisterAgentRejectsUnknownCategory(t *testing.T) {
	c := New(config.Default())
	_, err := c.RegisterAgent(agents.Init{Reputation: map[string]float64{"charisma": 80}})
	require.ErrorIs(t, err, faults.ErrInvalidArgument)
}

func TestDeregisterAgentCleansUp(t *testing.T) {
	c := New(config.Default())
	a, err := c.RegisterAgent(agents.Init{})
	require.NoError(t, err)
	b, err := c.RegisterAgent(agents.Init{})
	require.NoError(t, err)
	require.NoError(t, c.EstablishTrust(a, b, trust.EdgeInit{}))
	require.NoError(t, c.EstablishTrust(b, a, trust.EdgeInit{}))

	require.NoError(t, c.DeregisterAgent(a))

	_, err = c.AgentProfile(a)
	require.ErrorIs(t, err, faults.ErrNotFound)
	_, _, err = c.TrustBetween(b, a)
	require.ErrorIs(t, err, faults.ErrNotFound)
	_, _, err = c.TrustBetween(a, b)
	require.ErrorIs(t, err, faults.ErrNotFound)
}

func TestUpdateTrustLaunchesCascade(t *testing.T) {
	c := New(config.Default())
	a, _ := c.RegisterAgent(agents.Init{})
	b, _ := c.RegisterAgent(agents.Init{})
	d, _ := c.RegisterAgent(agents.Init{})
	require.NoError(t, c.EstablishTrust(a, b, trust.EdgeInit{}))
	require.NoError(t, c.EstablishTrust(b, d, trust.EdgeInit{}))

	change, err := c.UpdateTrust(a, b, map[string]float64{
		"integrity":   0.9,
		"competence":  0.9,
		"benevolence": 0.9,
	}, "rescue")
	require.NoError(t, err)
	require.Greater(t, change, c.Config().TrustUpdateThreshold)

	var cascaded bool
	for _, ev := range c.RecentEvents(0) {
		if ev.Type == events.TrustPropagationStarted {
			cascaded = true
		}
	}
	assert.True(t, cascaded)
}

func TestSmallTrustUpdateDoesNotCascade(t *testing.T) {
	c := New(config.Default())
	a, _ := c.RegisterAgent(agents.Init{})
	b, _ := c.RegisterAgent(agents.Init{})
	require.NoError(t, c.EstablishTrust(a, b, trust.EdgeInit{}))

	_, err := c.UpdateTrust(a, b, map[string]float64{"integrity": 0.05}, "chat")
	require.NoError(t, err)

	for _, ev := range c.RecentEvents(0) {
		assert.NotEqual(t, events.TrustPropagationStarted, ev.Type)
	}
}

func TestEndorsementRules(t *testing.T) {
	c := New(config.Default())
	a, _ := c.RegisterAgent(agents.Init{})
	b, _ := c.RegisterAgent(agents.Init{})

	require.ErrorIs(t, c.AddEndorsement(a, a, "leadership", 0.5), faults.ErrConflict)
	require.ErrorIs(t, c.AddEndorsement(a, b, "leadership", 1.5), faults.ErrInvalidArgument)

	before, err := c.AgentProfile(b)
	require.NoError(t, err)
	require.NoError(t, c.AddEndorsement(a, b, "leadership", 1.0))
	after, err := c.AgentProfile(b)
	require.NoError(t, err)
	assert.Greater(t, after.Agent.Overall, before.Agent.Overall)
}

func TestSetSpeedRescalesTickInterval(t *testing.T) {
	cfg := config.Default()
	c := New(cfg)

	require.ErrorIs(t, c.SetSpeed(0), faults.ErrInvalidArgument)
	require.ErrorIs(t, c.SetSpeed(-1), faults.ErrInvalidArgument)

	require.NoError(t, c.SetSpeed(2))
	assert.Equal(t, cfg.Runtime.TickInterval/2, c.TickInterval())

	require.NoError(t, c.SetSpeed(0.5))
	assert.Equal(t, cfg.Runtime.TickInterval*2, c.TickInterval())
}

func TestTestimonialRecordsContext(t *testing.T) {
	c := New(config.Default())
	a, _ := c.RegisterAgent(agents.Init{})
	b, _ := c.RegisterAgent(agents.Init{})

	require.ErrorIs(t, c.AddTestimonial(a, b, 1.5, "too strong"), faults.ErrInvalidArgument)
	require.NoError(t, c.AddTestimonial(a, b, 1.0, "delivered on time"))

	p, err := c.AgentProfile(b)
	require.NoError(t, err)
	require.NotEmpty(t, p.RepHistory)
	last := p.RepHistory[len(p.RepHistory)-1]
	assert.Equal(t, "business_integrity", last.Category)
	assert.Equal(t, "testimonial: delivered on time", last.Context)
	assert.InDelta(t, 2.0, last.Delta, 1e-9)

	edge, _, err := c.TrustBetween(a, b)
	require.NoError(t, err)
	assert.Greater(t, edge.Dims[config.TrustDimIndex("integrity")], 0.5)
}

func TestIncidentStagesEventAndDamages(t *testing.T) {
	c := New(config.Default())
	id, _ := c.RegisterAgent(agents.Init{})

	before, _ := c.AgentProfile(id)
	require.NoError(t, c.ReportIncident(id, "business_integrity", 0.8, "embezzlement"))
	after, _ := c.AgentProfile(id)
	assert.Less(t, after.Agent.Overall, before.Agent.Overall)

	var published bool
	for _, ev := range c.RecentEvents(0) {
		if ev.Type == events.PublicIncident {
			published = true
			assert.Equal(t, "embezzlement", ev.Meta["description"])
		}
	}
	assert.True(t, published)
}

func TestCriminalIncidentNeverImprovesStanding(t *testing.T) {
	c := New(config.Default())
	witness, _ := c.RegisterAgent(agents.Init{})
	subject, _ := c.RegisterAgent(agents.Init{})
	require.NoError(t, c.EstablishTrust(witness, subject, trust.EdgeInit{Kind: trust.KindBusiness}))

	before, _ := c.AgentProfile(subject)
	require.NoError(t, c.ReportIncident(subject, "criminal_activity", 1.0, "warehouse arson"))
	after, err := c.AgentProfile(subject)
	require.NoError(t, err)

	// A negatively weighted category counts misconduct upward.
	crim := c.Config().CategoryIndex("criminal_activity")
	assert.InDelta(t, 75.0, after.Agent.Scores[crim], 1e-9)
	assert.LessOrEqual(t, after.Agent.Overall, before.Agent.Overall)

	// The witness pulls back on the existing edge.
	edge, _, err := c.TrustBetween(witness, subject)
	require.NoError(t, err)
	assert.InDelta(t, 0.40, edge.Dims[config.TrustDimIndex("integrity")], 1e-9)
	assert.InDelta(t, 0.45, edge.Dims[config.TrustDimIndex("predictability")], 1e-9)
}

func TestEndorsementScalesWithEndorserStanding(t *testing.T) {
	c := New(config.Default())
	neutral, _ := c.RegisterAgent(agents.Init{})
	tarnished, _ := c.RegisterAgent(agents.Init{})
	first, _ := c.RegisterAgent(agents.Init{})
	second, _ := c.RegisterAgent(agents.Init{})

	// Drop the tarnished endorser below the neutral tier.
	require.NoError(t, c.UpdateReputation(tarnished, -40, "leadership", "scandal"))
	p, _ := c.AgentProfile(tarnished)
	require.Equal(t, "poor", p.Agent.Tier)

	idx := c.Config().CategoryIndex("innovation")
	require.NoError(t, c.AddEndorsement(neutral, first, "innovation", 1.0))
	require.NoError(t, c.AddEndorsement(tarnished, second, "innovation", 1.0))

	p1, _ := c.AgentProfile(first)
	p2, _ := c.AgentProfile(second)
	assert.InDelta(t, 53.0, p1.Agent.Scores[idx], 1e-9)
	assert.InDelta(t, 52.0, p2.Agent.Scores[idx], 1e-9)
}

func TestTrustInteractionsStampLastTrustTick(t *testing.T) {
	c := New(config.Default())
	a, _ := c.RegisterAgent(agents.Init{})
	b, _ := c.RegisterAgent(agents.Init{})

	require.NoError(t, c.TickOnce())
	require.NoError(t, c.EstablishTrust(a, b, trust.EdgeInit{}))

	pa, _ := c.AgentProfile(a)
	pb, _ := c.AgentProfile(b)
	assert.Equal(t, uint64(1), pa.Agent.LastTrustTick)
	assert.Equal(t, uint64(1), pb.Agent.LastTrustTick)

	require.NoError(t, c.TickOnce())
	_, err := c.UpdateTrust(a, b, map[string]float64{"competence": 0.05}, "delivery")
	require.NoError(t, err)

	pa, _ = c.AgentProfile(a)
	assert.Equal(t, uint64(2), pa.Agent.LastTrustTick)
}

func TestStopSealsTheCore(t *testing.T) {
	c := New(config.Default())
	_, err := c.RegisterAgent(agents.Init{})
	require.NoError(t, err)

	require.NoError(t, c.Stop())

	_, err = c.RegisterAgent(agents.Init{})
	require.ErrorIs(t, err, faults.ErrShutdown)
	require.ErrorIs(t, c.TickOnce(), faults.ErrShutdown)
	require.ErrorIs(t, c.Stop(), faults.ErrShutdown)

	var sealed bool
	for _, ev := range c.RecentEvents(0) {
		if ev.Type == events.Shutdown {
			sealed = true
		}
	}
	assert.True(t, sealed)
}

func TestGenerationalTransferMovesWealthToYoung(t *testing.T) {
	cfg := fastConfig()
	cfg.Ticks.SlowB = 2
	c := New(cfg)

	elder, err := c.RegisterAgent(agents.Init{Wealth: 100_000})
	require.NoError(t, err)
	require.NoError(t, c.TickOnce()) // age gap between the two
	heir, err := c.RegisterAgent(agents.Init{Wealth: 0})
	require.NoError(t, err)

	require.NoError(t, c.TickOnce()) // tick 2: slow-B fires

	ep, _ := c.AgentProfile(elder)
	hp, _ := c.AgentProfile(heir)
	assert.Less(t, ep.Agent.Wealth, 100_000.0)
	assert.Positive(t, hp.Agent.Wealth)
	// The decay burns part of the transfer.
	assert.Less(t, ep.Agent.Wealth+hp.Agent.Wealth, 100_000.0)

	var inherited bool
	for _, ev := range c.RecentEvents(0) {
		if ev.Type == events.WealthInheritance {
			inherited = true
		}
	}
	assert.True(t, inherited)
	assert.Equal(t, uint64(1), c.Culture().Generation())
}

func TestStatsReflectPopulation(t *testing.T) {
	c := New(config.Default())
	ids, err := c.SpawnPopulation(10)
	require.NoError(t, err)
	require.NoError(t, c.EstablishTrust(ids[0], ids[1], trust.EdgeInit{}))

	s := c.Stats()
	assert.Equal(t, 10, s.Agents)
	assert.Equal(t, 1, s.TrustEdges)
	assert.Positive(t, s.AverageReputation)
	assert.NotEmpty(t, s.Era)

	total := 0
	for _, n := range s.Classes {
		total += n
	}
	assert.Equal(t, 10, total)
}
