// Package config holds the frozen startup configuration for the core. Every
// threshold and weight the engines consult lives here; once a Config passes
// Validate it is copied by value into the core and never mutated.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/talgya/polis/internal/faults"
)

// TrustDimensions is the fixed ordered set of trustworthiness axes.
var TrustDimensions = [5]string{"competence", "benevolence", "integrity", "predictability", "transparency"}

// NumTrustDims is the number of trust dimensions.
const NumTrustDims = 5

// CulturalDimension is one scalar axis of the cultural space with the labels
// used when naming eras.
type CulturalDimension struct {
	Name      string `yaml:"name"`
	HighLabel string `yaml:"high_label"`
	LowLabel  string `yaml:"low_label"`
}

// ClassSpec describes one rung of the class hierarchy, ordered poorest first.
type ClassSpec struct {
	Name                string  `yaml:"name"`
	WealthFloor         float64 `yaml:"wealth_floor"`
	Opportunity         float64 `yaml:"opportunity"`
	MobilityProbability float64 `yaml:"mobility_probability"`
	PoliticalPower      float64 `yaml:"political_power"`
}

// Runtime holds operational knobs that may be overridden from the
// environment without touching the simulation parameters.
type Runtime struct {
	Seed           uint64        `yaml:"seed" env:"POLIS_SEED"`
	TickInterval   time.Duration `yaml:"tick_interval" env:"POLIS_TICK_INTERVAL"`
	APIPort        int           `yaml:"api_port" env:"POLIS_API_PORT"`
	AdminKey       string        `yaml:"admin_key" env:"POLIS_ADMIN_KEY"`
	SnapshotPath   string        `yaml:"snapshot_path" env:"POLIS_SNAPSHOT_PATH"`
	SnapshotEvery  uint64        `yaml:"snapshot_every" env:"POLIS_SNAPSHOT_EVERY"`
	DrainDeadline  time.Duration `yaml:"drain_deadline" env:"POLIS_DRAIN_DEADLINE"`
	EventBuffer    int           `yaml:"event_buffer" env:"POLIS_EVENT_BUFFER"`
	OverflowBuffer int           `yaml:"overflow_buffer" env:"POLIS_OVERFLOW_BUFFER"`
}

// Ticks defines the cadence of each periodic pass, expressed as multiples of
// the fast tick. Fast runs every tick.
type Ticks struct {
	MediumA uint64 `yaml:"medium_a"` // reputation bleed, cultural influence, contagion
	MediumB uint64 `yaml:"medium_b"` // class mobility, economic trust
	SlowA   uint64 `yaml:"slow_a"`   // reputation decay, edge reaping, reputation inheritance
	SlowB   uint64 `yaml:"slow_b"`   // era check, generational wealth transfer
}

// Config is the complete frozen configuration record.
type Config struct {
	Runtime Runtime `yaml:"runtime"`
	Ticks   Ticks   `yaml:"ticks"`

	// Reputation.
	ReputationCategories []string           `yaml:"reputation_categories"`
	ReputationWeights    map[string]float64 `yaml:"reputation_weights"` // abs values sum to 1
	ReputationDecayRate  float64            `yaml:"reputation_decay_rate"`
	BleedThreshold       float64            `yaml:"bleed_threshold"` // aggregate trust gate for network bleed
	BleedFactor          float64            `yaml:"bleed_factor"`

	// Trust graph.
	TrustDimWeights      [NumTrustDims]float64 `yaml:"trust_dim_weights"`
	TrustDimDecays       [NumTrustDims]float64 `yaml:"trust_dim_decays"`
	TrustUpdateThreshold float64               `yaml:"trust_update_threshold"`
	CascadeMaxDepth      int                   `yaml:"cascade_max_depth"`
	CascadeAttenuation   float64               `yaml:"cascade_attenuation"`
	CascadeMinImpact     float64               `yaml:"cascade_min_impact"`
	CascadeIndirectShare float64               `yaml:"cascade_indirect_share"`
	TrajectoryCap        int                   `yaml:"trajectory_cap"`
	QuiescencePeriod     uint64                `yaml:"quiescence_period"` // ticks at neutral before reaping
	QuiescenceEpsilon    float64               `yaml:"quiescence_epsilon"`

	// Economic trust and pricing.
	EconWeightSuccess     float64 `yaml:"econ_weight_success"`
	EconWeightPunctuality float64 `yaml:"econ_weight_punctuality"`
	EconWeightDefaults    float64 `yaml:"econ_weight_defaults"`
	EconWeightNetwork     float64 `yaml:"econ_weight_network"`
	PriceHighTrust        float64 `yaml:"price_high_trust"`
	PriceLowTrust         float64 `yaml:"price_low_trust"`
	PriceMaxDiscount      float64 `yaml:"price_max_discount"`
	PriceMaxPremium       float64 `yaml:"price_max_premium"`

	// Class mobility.
	Classes             []ClassSpec `yaml:"classes"`
	MobilityWeightEdu   float64     `yaml:"mobility_weight_edu"`
	MobilityWeightRep   float64     `yaml:"mobility_weight_rep"`
	MobilityWeightConn  float64     `yaml:"mobility_weight_conn"`
	MobilityWeightEcon  float64     `yaml:"mobility_weight_econ"`
	MobilityWeightLuck  float64     `yaml:"mobility_weight_luck"`
	RevolutionThreshold float64     `yaml:"revolution_threshold"`
	ParticipationFloor  float64     `yaml:"participation_floor"` // min revolutionary tendency to join

	// Culture.
	CulturalDimensions []CulturalDimension `yaml:"cultural_dimensions"`
	InfluenceRadius    float64             `yaml:"influence_radius"`
	MutationRate       float64             `yaml:"mutation_rate"`
	CulturalInertia    float64             `yaml:"cultural_inertia"`
	ShiftThreshold     float64             `yaml:"shift_threshold"`     // per-dimension velocity for cultural_shift
	EraMaxGenerations  uint64              `yaml:"era_max_generations"` // era age bound
	EraVelocity        float64             `yaml:"era_velocity"`        // change-velocity bound
	EraDimensionDelta  float64             `yaml:"era_dimension_delta"` // single-dimension bound
	RevolutionaryShift []float64           `yaml:"revolutionary_shift"` // per-dimension delta, len == dims

	// Inheritance.
	InheritanceRate         float64 `yaml:"inheritance_rate"`
	GenerationalWealthDecay float64 `yaml:"generational_wealth_decay"`

	// Histories.
	HistoryCap int `yaml:"history_cap"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		Runtime: Runtime{
			Seed:           42,
			TickInterval:   time.Second,
			APIPort:        8080,
			SnapshotEvery:  1440,
			DrainDeadline:  5 * time.Second,
			EventBuffer:    256,
			OverflowBuffer: 1024,
		},
		Ticks: Ticks{MediumA: 60, MediumB: 90, SlowA: 1440, SlowB: 10080},

		ReputationCategories: []string{
			"business_integrity", "financial_reliability", "social_cooperation",
			"innovation", "leadership", "criminal_activity",
			"political_influence", "philanthropy",
		},
		ReputationWeights: map[string]float64{
			"business_integrity":    0.16,
			"financial_reliability": 0.15,
			"social_cooperation":    0.13,
			"innovation":            0.10,
			"leadership":            0.12,
			"criminal_activity":     -0.10,
			"political_influence":   0.13,
			"philanthropy":          0.11,
		},
		ReputationDecayRate: 0.5,
		BleedThreshold:      0.6,
		BleedFactor:         0.1,

		TrustDimWeights:      [NumTrustDims]float64{0.25, 0.20, 0.25, 0.15, 0.15},
		TrustDimDecays:       [NumTrustDims]float64{0.01, 0.01, 0.01, 0.01, 0.01},
		TrustUpdateThreshold: 0.1,
		CascadeMaxDepth:      3,
		CascadeAttenuation:   0.7,
		CascadeMinImpact:     0.01,
		CascadeIndirectShare: 0.3,
		TrajectoryCap:        20,
		QuiescencePeriod:     43200,
		QuiescenceEpsilon:    0.02,

		EconWeightSuccess:     0.35,
		EconWeightPunctuality: 0.25,
		EconWeightDefaults:    0.25,
		EconWeightNetwork:     0.15,
		PriceHighTrust:        0.8,
		PriceLowTrust:         0.3,
		PriceMaxDiscount:      0.15,
		PriceMaxPremium:       0.30,

		Classes: []ClassSpec{
			{Name: "underclass", WealthFloor: 0, Opportunity: 0.15, MobilityProbability: 0.05, PoliticalPower: 0.05},
			{Name: "working", WealthFloor: 1_000, Opportunity: 0.30, MobilityProbability: 0.10, PoliticalPower: 0.10},
			{Name: "middle", WealthFloor: 10_000, Opportunity: 0.55, MobilityProbability: 0.15, PoliticalPower: 0.30},
			{Name: "upper_middle", WealthFloor: 100_000, Opportunity: 0.75, MobilityProbability: 0.10, PoliticalPower: 0.60},
			{Name: "upper", WealthFloor: 1_000_000, Opportunity: 0.90, MobilityProbability: 0.05, PoliticalPower: 0.90},
		},
		MobilityWeightEdu:   0.25,
		MobilityWeightRep:   0.25,
		MobilityWeightConn:  0.20,
		MobilityWeightEcon:  0.20,
		MobilityWeightLuck:  0.10,
		RevolutionThreshold: 0.8,
		ParticipationFloor:  0.5,

		CulturalDimensions: []CulturalDimension{
			{Name: "individualism", HighLabel: "Individualist", LowLabel: "Collectivist"},
			{Name: "materialism", HighLabel: "Material", LowLabel: "Spiritual"},
			{Name: "hierarchy", HighLabel: "Hierarchical", LowLabel: "Egalitarian"},
			{Name: "tradition", HighLabel: "Traditional", LowLabel: "Progressive"},
			{Name: "openness", HighLabel: "Open", LowLabel: "Insular"},
			{Name: "competitiveness", HighLabel: "Competitive", LowLabel: "Cooperative"},
		},
		InfluenceRadius:    0.3,
		MutationRate:       0.02,
		CulturalInertia:    0.7,
		ShiftThreshold:     0.05,
		EraMaxGenerations:  10,
		EraVelocity:        0.15,
		EraDimensionDelta:  0.3,
		RevolutionaryShift: []float64{-0.30, -0.20, -0.35, -0.25, 0.20, -0.15},

		InheritanceRate:         0.3,
		GenerationalWealthDecay: 0.1,

		HistoryCap: 100,
	}
}

// Load reads a YAML config file, applies environment overrides, and
// validates. An empty path yields defaults plus environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %v", faults.ErrInvalidConfig, path, err)
		}
	}

	if err := env.Parse(&cfg.Runtime); err != nil {
		return cfg, fmt.Errorf("%w: environment: %v", faults.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects any configuration the engines cannot run on.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", faults.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Runtime.TickInterval <= 0 {
		return bad("tick_interval must be positive")
	}
	if c.Ticks.MediumA == 0 || c.Ticks.MediumB == 0 || c.Ticks.SlowA == 0 || c.Ticks.SlowB == 0 {
		return bad("tick cadences must be positive")
	}

	if len(c.ReputationCategories) == 0 {
		return bad("no reputation categories")
	}
	absSum := 0.0
	for _, cat := range c.ReputationCategories {
		w, ok := c.ReputationWeights[cat]
		if !ok {
			return bad("category %q has no weight", cat)
		}
		if w > 0 {
			absSum += w
		} else {
			absSum -= w
		}
	}
	if absSum < 0.999 || absSum > 1.001 {
		return bad("reputation weight magnitudes sum to %.4f, want 1", absSum)
	}
	for cat := range c.ReputationWeights {
		found := false
		for _, known := range c.ReputationCategories {
			if known == cat {
				found = true
				break
			}
		}
		if !found {
			return bad("weight for unknown category %q", cat)
		}
	}

	dimSum := 0.0
	for i, w := range c.TrustDimWeights {
		if w < 0 {
			return bad("trust dimension %s weight negative", TrustDimensions[i])
		}
		dimSum += w
	}
	if dimSum < 0.999 || dimSum > 1.001 {
		return bad("trust dimension weights sum to %.4f, want 1", dimSum)
	}
	if c.CascadeMaxDepth < 1 {
		return bad("cascade_max_depth must be at least 1")
	}
	if c.CascadeAttenuation <= 0 || c.CascadeAttenuation > 1 {
		return bad("cascade_attenuation out of (0,1]")
	}

	if len(c.Classes) < 2 {
		return bad("class table needs at least two rungs")
	}
	prev := -1.0
	for _, cl := range c.Classes {
		if cl.WealthFloor < prev {
			return bad("class %q wealth floor out of order", cl.Name)
		}
		prev = cl.WealthFloor
		if cl.MobilityProbability < 0 || cl.MobilityProbability > 1 {
			return bad("class %q mobility probability out of [0,1]", cl.Name)
		}
	}

	if len(c.CulturalDimensions) == 0 {
		return bad("no cultural dimensions")
	}
	if len(c.RevolutionaryShift) != len(c.CulturalDimensions) {
		return bad("revolutionary_shift length %d, want %d", len(c.RevolutionaryShift), len(c.CulturalDimensions))
	}

	for name, v := range map[string]float64{
		"mutation_rate":             c.MutationRate,
		"cultural_inertia":          c.CulturalInertia,
		"revolution_threshold":      c.RevolutionThreshold,
		"participation_floor":       c.ParticipationFloor,
		"inheritance_rate":          c.InheritanceRate,
		"generational_wealth_decay": c.GenerationalWealthDecay,
		"trust_update_threshold":    c.TrustUpdateThreshold,
	} {
		if v < 0 || v > 1 {
			return bad("%s out of [0,1]", name)
		}
	}

	if c.HistoryCap < 1 {
		return bad("history_cap must be positive")
	}
	if c.TrajectoryCap < 2 {
		return bad("trajectory_cap must be at least 2")
	}
	return nil
}

// CategoryIndex returns the position of a category, or -1 when unknown.
func (c Config) CategoryIndex(category string) int {
	for i, cat := range c.ReputationCategories {
		if cat == category {
			return i
		}
	}
	return -1
}

// ClassIndexForWealth returns the highest class whose floor the wealth meets.
func (c Config) ClassIndexForWealth(wealth float64) int {
	idx := 0
	for i, cl := range c.Classes {
		if wealth >= cl.WealthFloor {
			idx = i
		}
	}
	return idx
}

// TrustDimIndex returns the position of a trust dimension, or -1.
func TrustDimIndex(name string) int {
	for i, d := range TrustDimensions {
		if d == name {
			return i
		}
	}
	return -1
}
