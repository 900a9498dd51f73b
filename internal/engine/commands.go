// Command surface of the core. Every command runs as one serialized unit of
// work: validate, mutate, then commit staged events. Commands submitted after
// Stop fail with ErrShutdown.
package engine

import (
	"fmt"
	"math"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
	"github.com/talgya/polis/internal/economy"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
	"github.com/talgya/polis/internal/mobility"
	"github.com/talgya/polis/internal/reputation"
	"github.com/talgya/polis/internal/trust"
)

func (c *Core) guard() error {
	if c.stopped {
		return faults.ErrShutdown
	}
	return nil
}

// touchTrust stamps the trust decay marker on agents that just took part in
// a direct trust interaction.
func (c *Core) touchTrust(ids ...agents.AgentID) {
	for _, id := range ids {
		if a, err := c.store.Get(id); err == nil {
			a.LastTrustTick = c.tick
		}
	}
}

// RegisterAgent creates an agent from the supplied initial state. Zero-value
// fields fall back to neutral defaults; a Parent reference seeds the child's
// reputation from the parent's standing.
func (c *Core) RegisterAgent(init agents.Init) (agents.AgentID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return 0, err
	}

	id := c.spawner.NextID()
	a, err := c.buildAgent(id, init)
	if err != nil {
		return 0, err
	}
	if err := c.store.Register(a); err != nil {
		return 0, err
	}
	c.spawner.SetNextID(id + 1)

	c.rep.InitAgent(a)
	if init.Parent != nil {
		if parent, err := c.store.Get(*init.Parent); err == nil {
			c.rep.InheritFrom(a, parent)
		}
	}
	c.cult.RecomputePreferences(a)
	c.refreshEconomicTrust(a)

	c.commit()
	return id, nil
}

// buildAgent materializes an Init into a full record.
func (c *Core) buildAgent(id agents.AgentID, init agents.Init) (*agents.Agent, error) {
	dims := len(c.cfg.CulturalDimensions)
	if init.Culture != nil && len(init.Culture) != dims {
		return nil, fmt.Errorf("%w: culture vector length %d, want %d", faults.ErrInvalidArgument, len(init.Culture), dims)
	}

	a := &agents.Agent{
		ID:        id,
		Wealth:    math.Max(0, init.Wealth),
		Education: agents.ClampScore(init.Education),
		BornTick:  c.tick,

		TrustPropensity:  orDefault(init.TrustPropensity, 0.5),
		TrustSensitivity: orDefault(init.TrustSensitivity, 0.5),

		CulturalFluidity:   orDefault(init.CulturalFluidity, 0.5),
		CulturalResistance: orDefault(init.CulturalResistance, 0.3),
		CulturalInfluence:  orDefault(init.CulturalInfluence, 0.5),

		RevolutionaryTendency: agents.Clamp01(init.RevolutionaryTendency),

		TxSuccessRate: 0.5,
		TxPunctuality: 0.5,

		Organizations: make(map[uint64]struct{}),
		Communities:   make(map[uint64]struct{}),

		RepHistory:      agents.NewRing[agents.ReputationChange](c.cfg.HistoryCap),
		CultureHistory:  agents.NewRing[agents.CulturalChange](c.cfg.HistoryCap),
		MobilityHistory: agents.NewRing[agents.MobilityAttempt](c.cfg.HistoryCap),
		ClassHistory:    agents.NewRing[agents.ClassChange](c.cfg.HistoryCap),
	}
	if a.Education == 0 {
		a.Education = 50
	}

	a.Scores = make([]float64, len(c.cfg.ReputationCategories))
	for i, cat := range c.cfg.ReputationCategories {
		a.Scores[i] = 50
		if v, ok := init.Reputation[cat]; ok {
			a.Scores[i] = agents.ClampScore(v)
		}
	}
	for cat := range init.Reputation {
		if c.cfg.CategoryIndex(cat) < 0 {
			return nil, fmt.Errorf("%w: reputation category %q", faults.ErrInvalidArgument, cat)
		}
	}

	for i := range a.Trustworthiness {
		a.Trustworthiness[i] = 0.5
	}
	for dim, v := range init.Trustworthiness {
		i := config.TrustDimIndex(dim)
		if i < 0 {
			return nil, fmt.Errorf("%w: trust dimension %q", faults.ErrInvalidArgument, dim)
		}
		a.Trustworthiness[i] = agents.Clamp01(v)
	}

	a.Culture = make([]float64, dims)
	for d := range a.Culture {
		a.Culture[d] = 0.5
		if init.Culture != nil {
			a.Culture[d] = agents.Clamp01(init.Culture[d])
		}
	}

	a.Class = c.cfg.ClassIndexForWealth(a.Wealth)
	a.ClassEnteredTick = c.tick
	return a, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return agents.Clamp01(v)
}

// SpawnPopulation registers count procedurally generated agents and returns
// their IDs.
func (c *Core) SpawnPopulation(count int) ([]agents.AgentID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	ids := make([]agents.AgentID, 0, count)
	for _, reg := range c.spawner.SpawnPopulation(count) {
		a, err := c.buildAgent(reg.ID, reg.Init)
		if err != nil {
			return ids, err
		}
		if err := c.store.Register(a); err != nil {
			return ids, err
		}
		c.rep.InitAgent(a)
		c.cult.RecomputePreferences(a)
		c.refreshEconomicTrust(a)
		ids = append(ids, reg.ID)
	}
	c.commit()
	return ids, nil
}

// DeregisterAgent removes an agent and all state referencing it.
func (c *Core) DeregisterAgent(id agents.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.store.Deregister(id); err != nil {
		return err
	}
	c.graph.DropAgent(id)
	c.rep.Forget(id)
	c.social.DropAgent(id)
	c.commit()
	return nil
}

// SetWealth sets an agent's wealth directly. Crossing a class wealth bracket
// moves the agent immediately and emits exactly one class change.
func (c *Core) SetWealth(id agents.AgentID, wealth float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if math.IsNaN(wealth) || math.IsInf(wealth, 0) {
		return fmt.Errorf("%w: wealth", faults.ErrInvalidArgument)
	}

	a, err := c.store.SetWealth(id, wealth)
	if err != nil {
		return err
	}
	if newClass := c.cfg.ClassIndexForWealth(a.Wealth); newClass != a.Class {
		from := a.Class
		c.store.SetClass(id, newClass, c.tick, mobility.ReasonWealthChange)
		c.bus.Stage(c.tick, events.StageMobility, events.ClassChange, map[string]any{
			"agent":  uint64(id),
			"from":   c.cfg.Classes[from].Name,
			"to":     c.cfg.Classes[newClass].Name,
			"reason": mobility.ReasonWealthChange,
		})
	}
	c.commit()
	return nil
}

// UpdateReputation applies a direct reputation delta with network bleed.
func (c *Core) UpdateReputation(id agents.AgentID, delta float64, category, context string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.rep.Update(c.tick, id, delta, category, context); err != nil {
		return err
	}
	c.commit()
	return nil
}

// AddEndorsement is a public vouch: it lifts the subject's reputation in the
// named category proportionally to the endorsement weight, scaled by the
// endorser's own standing.
func (c *Core) AddEndorsement(from, to agents.AgentID, category string, weight float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("%w: self endorsement", faults.ErrConflict)
	}
	if weight < 0 || weight > 1 {
		return fmt.Errorf("%w: endorsement weight out of [0,1]", faults.ErrInvalidArgument)
	}
	endorser, err := c.store.Get(from)
	if err != nil {
		return err
	}

	// A vouch is worth the voucher's own tier: neutral carries the full
	// delta, higher tiers up to twice that, a criminal-tier vouch nothing.
	standing := float64(reputation.TierRank(endorser.Tier)) / float64(reputation.TierRank(reputation.TierNeutral))
	if err := c.rep.Update(c.tick, to, 3*weight*standing, category, "endorsement"); err != nil {
		return err
	}
	c.commit()
	return nil
}

// AddTestimonial records a relationship testimonial: a modest integrity
// boost for the subject plus a strengthening of the author's trust edge. The
// text is carried as the context on both adjustments.
func (c *Core) AddTestimonial(from, to agents.AgentID, weight float64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if weight < 0 || weight > 1 {
		return fmt.Errorf("%w: testimonial weight out of [0,1]", faults.ErrInvalidArgument)
	}
	if !c.store.Has(from) {
		return fmt.Errorf("%w: agent %d", faults.ErrNotFound, from)
	}
	if !c.store.Has(to) {
		return fmt.Errorf("%w: agent %d", faults.ErrNotFound, to)
	}

	context := "testimonial"
	if text != "" {
		context = "testimonial: " + text
	}
	if err := c.rep.Apply(c.tick, to, "business_integrity", 2*weight, context); err != nil {
		return err
	}
	if _, _, err := c.graph.Update(c.tick, from, to, map[string]float64{
		"integrity":   0.05 * weight,
		"benevolence": 0.03 * weight,
	}, context); err != nil {
		return err
	}
	c.touchTrust(from, to)
	c.commit()
	return nil
}

// ReportIncident publishes a public incident against an agent. Severity in
// [0,1] scales the reputation damage; the hit bleeds through the network the
// way direct updates do, and everyone who already trusts the subject pulls
// back.
func (c *Core) ReportIncident(id agents.AgentID, category string, severity float64, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if severity < 0 || severity > 1 {
		return fmt.Errorf("%w: severity out of [0,1]", faults.ErrInvalidArgument)
	}
	if c.cfg.CategoryIndex(category) < 0 {
		return fmt.Errorf("%w: invalid_category %q", faults.ErrInvalidArgument, category)
	}
	if !c.store.Has(id) {
		return fmt.Errorf("%w: agent %d", faults.ErrNotFound, id)
	}

	c.bus.Stage(c.tick, events.StageReputation, events.PublicIncident, map[string]any{
		"agent":       uint64(id),
		"category":    category,
		"severity":    severity,
		"description": description,
	})

	// Negatively weighted categories count misconduct upward, so an incident
	// raises the score there and lowers it everywhere else. Either way the
	// overall score drops.
	delta := -25 * severity
	if c.cfg.ReputationWeights[category] < 0 {
		delta = -delta
	}
	if err := c.rep.Update(c.tick, id, delta, category, "public_incident"); err != nil {
		return err
	}

	for _, e := range c.graph.IncomingEdges(id) {
		witness := e.From
		if _, _, err := c.graph.Update(c.tick, witness, id, map[string]float64{
			"integrity":      -0.10 * severity,
			"predictability": -0.05 * severity,
		}, "public_incident"); err != nil {
			return err
		}
		c.touchTrust(witness)
	}
	c.touchTrust(id)
	c.commit()
	return nil
}

// EstablishTrust creates or upgrades a directed trust relationship.
func (c *Core) EstablishTrust(from, to agents.AgentID, init trust.EdgeInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if !c.store.Has(from) {
		return fmt.Errorf("%w: agent %d", faults.ErrNotFound, from)
	}
	if !c.store.Has(to) {
		return fmt.Errorf("%w: agent %d", faults.ErrNotFound, to)
	}
	if _, err := c.graph.Establish(c.tick, from, to, init); err != nil {
		return err
	}
	c.touchTrust(from, to)
	c.commit()
	return nil
}

// UpdateTrust applies per-dimension trust deltas. An aggregate change beyond
// the configured threshold launches an influence cascade from the target.
func (c *Core) UpdateTrust(from, to agents.AgentID, deltas map[string]float64, context string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return 0, err
	}
	if !c.store.Has(from) {
		return 0, fmt.Errorf("%w: agent %d", faults.ErrNotFound, from)
	}
	if !c.store.Has(to) {
		return 0, fmt.Errorf("%w: agent %d", faults.ErrNotFound, to)
	}

	change, _, err := c.graph.Update(c.tick, from, to, deltas, context)
	if err != nil {
		return 0, err
	}
	if math.Abs(change) > c.cfg.TrustUpdateThreshold {
		c.graph.Cascade(c.tick, from, to, change, c.cascadeStream.UUID())
	}
	c.touchTrust(from, to)
	c.commit()
	return change, nil
}

// FormOrganization creates an organization founded by the given agent.
func (c *Core) FormOrganization(name, kind string, founder agents.AgentID) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return 0, err
	}
	org, err := c.social.FormOrganization(c.tick, name, kind, founder)
	if err != nil {
		return 0, err
	}
	c.commit()
	return org.ID, nil
}

// DissolveOrganization removes an organization and detaches its members.
func (c *Core) DissolveOrganization(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.social.DissolveOrganization(c.tick, id); err != nil {
		return err
	}
	c.commit()
	return nil
}

// JoinOrganization attaches an agent to an organization.
func (c *Core) JoinOrganization(orgID uint64, id agents.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.social.Join(c.tick, orgID, id); err != nil {
		return err
	}
	c.commit()
	return nil
}

// LeaveOrganization detaches an agent from an organization.
func (c *Core) LeaveOrganization(orgID uint64, id agents.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.social.Leave(c.tick, orgID, id); err != nil {
		return err
	}
	c.commit()
	return nil
}

// DelegateVote records an advisory vote delegation inside an organization.
func (c *Core) DelegateVote(orgID uint64, from, to agents.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.social.DelegateVote(c.tick, orgID, from, to); err != nil {
		return err
	}
	c.commit()
	return nil
}

// FormCommunity creates an informal community.
func (c *Core) FormCommunity(name string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return 0, err
	}
	comm := c.social.FormCommunity(c.tick, name)
	return comm.ID, nil
}

// JoinCommunity adds an agent to a community.
func (c *Core) JoinCommunity(commID uint64, id agents.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	return c.social.JoinCommunity(commID, id)
}

// LeaveCommunity removes an agent from a community.
func (c *Core) LeaveCommunity(commID uint64, id agents.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	return c.social.LeaveCommunity(commID, id)
}

// TriggerRevolutionaryCulturalShift applies the configured revolutionary
// shift to every agent and the global culture, outside any revolution.
func (c *Core) TriggerRevolutionaryCulturalShift() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard(); err != nil {
		return err
	}
	c.cult.RevolutionaryShift(c.tick)
	c.commit()
	return nil
}

// refreshEconomicTrust rederives the agent's economic trust and credit
// rating from its transaction record and network standing.
func (c *Core) refreshEconomicTrust(a *agents.Agent) {
	a.EconomicTrust = economy.EconomicTrust(c.cfg, a, c.graph.NetworkMeanTrust(a.ID))
	a.CreditRating = economy.RatingFor(a.EconomicTrust)
}
