package reputation

// Tier names, worst to best.
const (
	TierCriminal  = "criminal"
	TierTerrible  = "terrible"
	TierPoor      = "poor"
	TierNeutral   = "neutral"
	TierGood      = "good"
	TierExcellent = "excellent"
	TierLegendary = "legendary"
)

type tierBound struct {
	floor float64
	name  string
}

// Monotone threshold table over the overall score.
var tierTable = []tierBound{
	{95, TierLegendary},
	{80, TierExcellent},
	{60, TierGood},
	{40, TierNeutral},
	{25, TierPoor},
	{10, TierTerrible},
	{0, TierCriminal},
}

// TierFor buckets an overall score.
func TierFor(overall float64) string {
	for _, b := range tierTable {
		if overall >= b.floor {
			return b.name
		}
	}
	return TierCriminal
}

// TierRank returns the position of a tier, 0 = criminal. Unknown tiers rank
// as neutral.
func TierRank(tier string) int {
	switch tier {
	case TierCriminal:
		return 0
	case TierTerrible:
		return 1
	case TierPoor:
		return 2
	case TierNeutral:
		return 3
	case TierGood:
		return 4
	case TierExcellent:
		return 5
	case TierLegendary:
		return 6
	}
	return 3
}
