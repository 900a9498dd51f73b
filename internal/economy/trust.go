// Package economy derives economic trust from an agent's transaction record
// and its standing in the trust network, maps it to a creditworthiness
// rating, and prices exchanges by relationship trust.
package economy

import (
	"math"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
)

// Credit ratings, worst to best.
const (
	RatingBad       = "bad"
	RatingPoor      = "poor"
	RatingFair      = "fair"
	RatingGood      = "good"
	RatingExcellent = "excellent"
)

// EconomicTrust combines transaction success rate, punctuality, default
// count, and network-mean aggregate trust into a [0,1] scalar.
func EconomicTrust(cfg config.Config, a *agents.Agent, networkMean float64) float64 {
	defaultPenalty := 1 - math.Min(1, float64(a.TxDefaults)/10)
	v := cfg.EconWeightSuccess*a.TxSuccessRate +
		cfg.EconWeightPunctuality*a.TxPunctuality +
		cfg.EconWeightDefaults*defaultPenalty +
		cfg.EconWeightNetwork*networkMean
	return agents.Clamp01(v)
}

// RatingFor maps economic trust to a creditworthiness rating. The table is
// monotonic: higher trust never rates worse.
func RatingFor(economicTrust float64) string {
	switch {
	case economicTrust >= 0.85:
		return RatingExcellent
	case economicTrust >= 0.65:
		return RatingGood
	case economicTrust >= 0.45:
		return RatingFair
	case economicTrust >= 0.25:
		return RatingPoor
	}
	return RatingBad
}

// PriceFor adjusts a base price by the combined trust between seller and
// buyer: discount above the high-trust threshold, premium below the
// low-trust threshold, identity in between. Pure function.
func PriceFor(cfg config.Config, sellerToBuyerTrust, buyerEconomicTrust, basePrice float64) float64 {
	combined := 0.6*sellerToBuyerTrust + 0.4*buyerEconomicTrust
	return basePrice * priceModifier(cfg, combined)
}

func priceModifier(cfg config.Config, combined float64) float64 {
	switch {
	case combined >= cfg.PriceHighTrust:
		// Linear from 1.0 at the threshold down to 1 − maxDiscount at 1.0.
		span := 1 - cfg.PriceHighTrust
		if span <= 0 {
			return 1 - cfg.PriceMaxDiscount
		}
		return 1 - cfg.PriceMaxDiscount*(combined-cfg.PriceHighTrust)/span
	case combined <= cfg.PriceLowTrust:
		// Linear from 1.0 at the threshold up to 1 + maxPremium at 0.
		if cfg.PriceLowTrust <= 0 {
			return 1 + cfg.PriceMaxPremium
		}
		return 1 + cfg.PriceMaxPremium*(cfg.PriceLowTrust-combined)/cfg.PriceLowTrust
	}
	return 1
}
