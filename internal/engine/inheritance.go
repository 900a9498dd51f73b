// Generational wealth transfer. Each slow-B pass is treated as a
// generational boundary: the older half of the population passes a share of
// its wealth down, thinned by the generational decay, and the culture
// engine's generation counter advances.
package engine

import (
	"log/slog"
	"sort"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/events"
)

func (c *Core) generationalTransfer(tick uint64) {
	all := c.store.All()
	if len(all) < 2 {
		c.cult.AdvanceGeneration()
		return
	}

	// Oldest half are benefactors, youngest half heirs, paired oldest to
	// youngest. Ties on birth tick break by ID, keeping the pairing stable.
	byAge := make([]*agents.Agent, len(all))
	copy(byAge, all)
	sort.SliceStable(byAge, func(i, j int) bool { return byAge[i].BornTick < byAge[j].BornTick })

	half := len(byAge) / 2
	benefactors := byAge[:half]
	heirs := byAge[len(byAge)-half:]

	transferred := 0.0
	for i, b := range benefactors {
		heir := heirs[len(heirs)-1-i]
		if heir.ID == b.ID {
			continue
		}
		amount := b.Wealth * c.cfg.InheritanceRate
		if amount <= 0 {
			continue
		}
		received := amount * (1 - c.cfg.GenerationalWealthDecay)
		b.Wealth -= amount
		heir.Wealth += received
		transferred += received

		c.bus.Stage(tick, events.StageMobility, events.WealthInheritance, map[string]any{
			"from":    uint64(b.ID),
			"to":      uint64(heir.ID),
			"amount":  received,
			"decayed": amount - received,
		})
	}

	c.cult.AdvanceGeneration()
	slog.Info("generational transfer",
		"tick", tick,
		"generation", c.cult.Generation(),
		"transferred", transferred,
	)
}
