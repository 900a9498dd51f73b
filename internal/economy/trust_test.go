package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/config"
)

func TestEconomicTrustCombination(t *testing.T) {
	cfg := config.Default()
	a := &agents.Agent{
		TxSuccessRate: 1.0,
		TxPunctuality: 1.0,
		TxDefaults:    0,
	}
	// Perfect record and perfect network: all components at 1.
	assert.InDelta(t, 1.0, EconomicTrust(cfg, a, 1.0), 1e-9)

	// Ten defaults zero out the default component.
	a.TxDefaults = 10
	want := cfg.EconWeightSuccess + cfg.EconWeightPunctuality + cfg.EconWeightNetwork
	assert.InDelta(t, want, EconomicTrust(cfg, a, 1.0), 1e-9)
}

func TestEconomicTrustClamped(t *testing.T) {
	cfg := config.Default()
	a := &agents.Agent{TxDefaults: 100}
	v := EconomicTrust(cfg, a, 0)
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestRatingMonotone(t *testing.T) {
	prev := RatingFor(0)
	order := map[string]int{
		RatingBad: 0, RatingPoor: 1, RatingFair: 2, RatingGood: 3, RatingExcellent: 4,
	}
	for v := 0.0; v <= 1.0; v += 0.01 {
		cur := RatingFor(v)
		assert.GreaterOrEqual(t, order[cur], order[prev], "rating regressed at %f", v)
		prev = cur
	}
	assert.Equal(t, RatingExcellent, RatingFor(0.9))
	assert.Equal(t, RatingBad, RatingFor(0.1))
}

func TestPriceIdentityBand(t *testing.T) {
	cfg := config.Default()
	// Combined trust between the thresholds leaves the price alone.
	price := PriceFor(cfg, 0.5, 0.5, 200)
	assert.InDelta(t, 200.0, price, 1e-9)
}

func TestPriceDiscountAboveHighTrust(t *testing.T) {
	cfg := config.Default()
	// Full trust earns the maximum discount.
	price := PriceFor(cfg, 1.0, 1.0, 100)
	assert.InDelta(t, 100*(1-cfg.PriceMaxDiscount), price, 1e-9)

	// Just above the threshold the discount is small but real.
	near := PriceFor(cfg, 0.85, 0.85, 100)
	assert.Less(t, near, 100.0)
	assert.Greater(t, near, price)
}

func TestPricePremiumBelowLowTrust(t *testing.T) {
	cfg := config.Default()
	price := PriceFor(cfg, 0, 0, 100)
	assert.InDelta(t, 100*(1+cfg.PriceMaxPremium), price, 1e-9)

	near := PriceFor(cfg, 0.25, 0.25, 100)
	assert.Greater(t, near, 100.0)
	assert.Less(t, near, price)
}
