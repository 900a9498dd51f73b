// Influence cascades: a breadth-limited wave that carries a trust impact
// outward from an updated edge's target, attenuating per hop. Cascades run
// entirely within the tick that scheduled them.
package trust

import (
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/events"
)

// CascadeResult summarizes one completed cascade.
type CascadeResult struct {
	ID           string
	Origin       agents.AgentID
	Target       agents.AgentID
	Hops         int
	NodesReached int
	EdgesUpdated int
}

// Cascade propagates originDelta outward from target. Nodes reached before
// the hop limit apply an indirect update (the configured share of their
// accumulated impact, uniform over all dimensions) to their outgoing edges;
// nodes at the hop limit accumulate impact but propagate no further. A
// visited set prevents cycles within one cascade; simultaneous cascades are
// independent and their clamped deltas sum.
func (g *Graph) Cascade(tick uint64, origin, target agents.AgentID, originDelta float64, cascadeID string) CascadeResult {
	res := CascadeResult{ID: cascadeID, Origin: origin, Target: target}

	g.bus.Stage(tick, events.StageTrust, events.TrustPropagationStarted, map[string]any{
		"cascade": cascadeID,
		"origin":  uint64(origin),
		"target":  uint64(target),
		"impact":  originDelta,
	})

	visited := map[agents.AgentID]struct{}{target: {}}
	wave := map[agents.AgentID]float64{target: originDelta}

	for hop := 0; hop < g.cfg.CascadeMaxDepth && len(wave) > 0; hop++ {
		res.Hops = hop
		next := make(map[agents.AgentID]float64)

		for _, v := range sortedWave(wave) {
			impact := wave[v]
			res.NodesReached++

			indirect := impact * g.cfg.CascadeIndirectShare
			attenuation := math.Pow(g.cfg.CascadeAttenuation, float64(hop))

			for _, e := range g.OutgoingEdges(v) {
				g.applyIndirect(tick, e, indirect)
				res.EdgesUpdated++

				if _, seen := visited[e.To]; seen {
					continue
				}
				contribution := impact * attenuation * g.Aggregate(e) * e.PropagationWeight * KindModifier(e.Kind)
				if math.Abs(contribution) < g.cfg.CascadeMinImpact {
					continue
				}
				next[e.To] += contribution
			}
		}

		for w := range next {
			visited[w] = struct{}{}
		}
		wave = next
	}

	slog.Debug("trust cascade complete",
		"cascade", cascadeID,
		"origin", origin,
		"target", target,
		"nodes", res.NodesReached,
		"edges", res.EdgesUpdated,
	)
	return res
}

func sortedWave(wave map[agents.AgentID]float64) []agents.AgentID {
	ids := make([]agents.AgentID, 0, len(wave))
	for id := range wave {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
