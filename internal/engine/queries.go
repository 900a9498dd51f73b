// Read-side of the core. Each query takes the lock, so a result is always a
// consistent view of committed state, never a mid-tick mixture.
package engine

import (
	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/culture"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/trust"
)

// Profile is the full externally visible state of one agent.
type Profile struct {
	Agent           agents.Agent              `json:"agent"`
	RepHistory      []agents.ReputationChange `json:"reputation_history"`
	ClassHistory    []agents.ClassChange      `json:"class_history"`
	CultureHistory  []agents.CulturalChange   `json:"culture_history"`
	MobilityHistory []agents.MobilityAttempt  `json:"mobility_history"`
	OutDegree       int                       `json:"out_degree"`
	NetworkTrust    float64                   `json:"network_trust"`
}

// AgentProfile returns a copy of the agent's state and histories.
func (c *Core) AgentProfile(id agents.AgentID) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, err := c.store.Get(id)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{
		Agent:           *a,
		RepHistory:      a.RepHistory.Items(),
		ClassHistory:    a.ClassHistory.Items(),
		CultureHistory:  a.CultureHistory.Items(),
		MobilityHistory: a.MobilityHistory.Items(),
		OutDegree:       len(c.graph.OutgoingEdges(id)),
		NetworkTrust:    c.graph.NetworkMeanTrust(id),
	}
	// Copies of the slices backing the record, so callers cannot reach into
	// live state.
	p.Agent.Scores = append([]float64(nil), a.Scores...)
	p.Agent.Culture = append([]float64(nil), a.Culture...)
	prefs := make(map[string]float64, len(a.EconomicPreferences))
	for k, v := range a.EconomicPreferences {
		prefs[k] = v
	}
	p.Agent.EconomicPreferences = prefs
	return p, nil
}

// AgentIDs returns every registered ID in ascending order.
func (c *Core) AgentIDs() []agents.AgentID {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.store.All()
	out := make([]agents.AgentID, 0, len(all))
	for _, a := range all {
		out = append(out, a.ID)
	}
	return out
}

// TrustBetween returns a copy of the directed edge from → to.
func (c *Core) TrustBetween(from, to agents.AgentID) (trust.Edge, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.graph.Edge(from, to)
	if err != nil {
		return trust.Edge{}, 0, err
	}
	return *e, c.graph.Aggregate(e), nil
}

// ClassDistribution returns the agent count per class name.
func (c *Core) ClassDistribution() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.cfg.Classes))
	for _, cl := range c.cfg.Classes {
		out[cl.Name] = 0
	}
	for _, a := range c.store.All() {
		out[c.cfg.Classes[a.Class].Name]++
	}
	return out
}

// AverageReputation returns the population mean of the overall score.
func (c *Core) AverageReputation() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.store.All()
	if len(all) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range all {
		sum += a.Overall
	}
	return sum / float64(len(all))
}

// CulturalDiversity returns the mean per-dimension cultural variance.
func (c *Core) CulturalDiversity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cult.Diversity()
}

// GlobalCulture returns the global cultural vector.
func (c *Core) GlobalCulture() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cult.Global()
}

// CurrentEra returns the era in progress.
func (c *Core) CurrentEra() culture.Era {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cult.CurrentEra()
}

// RevolutionProgress returns the last computed revolution progress.
func (c *Core) RevolutionProgress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mob.RevolutionProgress()
}

// RecentEvents returns up to n recently committed events, oldest first.
func (c *Core) RecentEvents(n int) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Recent(n)
}

// Stats is the population-level summary served by the status endpoint.
type Stats struct {
	Tick               uint64         `json:"tick"`
	Agents             int            `json:"agents"`
	TrustEdges         int            `json:"trust_edges"`
	AverageReputation  float64        `json:"average_reputation"`
	CulturalDiversity  float64        `json:"cultural_diversity"`
	RevolutionProgress float64        `json:"revolution_progress"`
	Era                string         `json:"era"`
	Generation         uint64         `json:"generation"`
	Classes            map[string]int `json:"classes"`
}

// Snapshot of the headline numbers, taken atomically.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.store.All()
	repSum := 0.0
	classes := make(map[string]int, len(c.cfg.Classes))
	for _, cl := range c.cfg.Classes {
		classes[cl.Name] = 0
	}
	for _, a := range all {
		repSum += a.Overall
		classes[c.cfg.Classes[a.Class].Name]++
	}
	avgRep := 0.0
	if len(all) > 0 {
		avgRep = repSum / float64(len(all))
	}

	return Stats{
		Tick:               c.tick,
		Agents:             len(all),
		TrustEdges:         c.graph.EdgeCount(),
		AverageReputation:  avgRep,
		CulturalDiversity:  c.cult.Diversity(),
		RevolutionProgress: c.mob.RevolutionProgress(),
		Era:                c.cult.CurrentEra().Name,
		Generation:         c.cult.Generation(),
		Classes:            classes,
	}
}
