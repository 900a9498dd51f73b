package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/events"
)

// buildChain wires 1→2→3→4→5→6 with strong edges so contributions stay above
// the minimum impact for the full depth.
func buildChain(t *testing.T, g *Graph) {
	t.Helper()
	strong := map[string]float64{
		"competence":     0.9,
		"benevolence":    0.9,
		"integrity":      0.9,
		"predictability": 0.9,
		"transparency":   0.9,
	}
	for from := agents.AgentID(1); from <= 5; from++ {
		_, err := g.Establish(1, from, from+1, EdgeInit{Dims: strong})
		require.NoError(t, err)
	}
}

func TestCascadeRespectsDepthLimit(t *testing.T) {
	cfg := config.Default() // depth 3
	g := NewGraph(cfg, testBus())
	buildChain(t, g)

	before := func(from agents.AgentID) float64 {
		e, err := g.Edge(from, from+1)
		require.NoError(t, err)
		return g.Aggregate(e)
	}
	base23 := before(2)
	base34 := before(3)
	base45 := before(4)
	base56 := before(5)

	res := g.Cascade(10, 1, 2, 0.25, "cascade-1")

	// Hops 0..2 process nodes 2, 3, 4: their outgoing edges take the
	// indirect share. Node 5 accumulates impact at the depth limit and its
	// edges stay untouched.
	assert.Greater(t, before(2), base23)
	assert.Greater(t, before(3), base34)
	assert.Greater(t, before(4), base45)
	assert.Equal(t, base56, before(5))

	assert.Equal(t, 3, res.NodesReached)
	assert.Equal(t, 3, res.EdgesUpdated)
}

func TestCascadeAttenuatesPerHop(t *testing.T) {
	cfg := config.Default()
	g := NewGraph(cfg, testBus())
	buildChain(t, g)

	g.Cascade(10, 1, 2, 0.25, "cascade-1")

	// Each hop's indirect delta shrinks: the impact reaching node 3 is the
	// attenuated, trust-scaled share of what hit node 2.
	e23, _ := g.Edge(2, 3)
	e34, _ := g.Edge(3, 4)
	d23 := e23.Dims[0] - 0.9
	d34 := e34.Dims[0] - 0.9
	assert.Greater(t, d23, d34)
	assert.Greater(t, d34, 0.0)
}

func TestCascadeBelowMinImpactStops(t *testing.T) {
	cfg := config.Default()
	g := NewGraph(cfg, testBus())

	// Weak edges: the first contribution already falls under the floor.
	weak := map[string]float64{
		"competence":     0.05,
		"benevolence":    0.05,
		"integrity":      0.05,
		"predictability": 0.05,
		"transparency":   0.05,
	}
	_, err := g.Establish(1, 2, 3, EdgeInit{Dims: weak})
	require.NoError(t, err)

	res := g.Cascade(10, 1, 2, 0.02, "cascade-1")
	assert.Equal(t, 1, res.NodesReached)
}

func TestCascadeStagesPropagationEvent(t *testing.T) {
	cfg := config.Default()
	g := NewGraph(cfg, testBus())
	buildChain(t, g)

	g.Cascade(10, 1, 2, 0.25, "cascade-xyz")

	var found bool
	for _, ev := range g.bus.Flush() {
		if ev.Type == events.TrustPropagationStarted {
			found = true
			assert.Equal(t, "cascade-xyz", ev.Meta["cascade"])
		}
	}
	assert.True(t, found)
}

func TestCascadeDoesNotRevisit(t *testing.T) {
	cfg := config.Default()
	g := NewGraph(cfg, testBus())

	strong := map[string]float64{
		"competence":     0.9,
		"benevolence":    0.9,
		"integrity":      0.9,
		"predictability": 0.9,
		"transparency":   0.9,
	}
	// Cycle 2→3→2.
	_, err := g.Establish(1, 2, 3, EdgeInit{Dims: strong})
	require.NoError(t, err)
	_, err = g.Establish(1, 3, 2, EdgeInit{Dims: strong})
	require.NoError(t, err)

	res := g.Cascade(10, 1, 2, 0.25, "cascade-1")
	// 2 processes, contributes to 3; 3 processes, but 2 is visited so the
	// wave dies.
	assert.Equal(t, 2, res.NodesReached)
}
