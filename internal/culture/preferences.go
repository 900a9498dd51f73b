package culture

import "github.com/talgya/polis/internal/agents"

// prefWeights maps each economic preference to the cultural dimensions that
// drive it. A preference sits at 0.5 for a midpoint culture and moves with
// the signed deviation of each listed dimension.
var prefWeights = map[string]map[string]float64{
	"risk_tolerance": {
		"openness":        0.35,
		"competitiveness": 0.30,
		"tradition":       -0.25,
	},
	"savings_rate": {
		"tradition":   0.35,
		"materialism": -0.30,
	},
	"consumption": {
		"materialism":     0.40,
		"competitiveness": 0.20,
	},
	"cooperation": {
		"competitiveness": -0.40,
		"individualism":   -0.30,
	},
	"entrepreneurship": {
		"individualism":   0.30,
		"openness":        0.30,
		"competitiveness": 0.20,
	},
}

// RecomputePreferences rederives the agent's economic preferences from its
// cultural vector. Dimensions absent from the configured space are skipped.
func (e *Engine) RecomputePreferences(a *agents.Agent) {
	if a.EconomicPreferences == nil {
		a.EconomicPreferences = make(map[string]float64, len(prefWeights))
	}
	for pref, weights := range prefWeights {
		v := 0.5
		for d, dim := range e.cfg.CulturalDimensions {
			if w, ok := weights[dim.Name]; ok {
				v += w * (a.Culture[d] - 0.5)
			}
		}
		a.EconomicPreferences[pref] = agents.Clamp01(v)
	}
}
