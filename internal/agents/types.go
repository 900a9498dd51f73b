// Package agents provides the agent data model and the keyed store that owns
// all per-agent state. Other subsystems hold AgentIDs only, never references
// into another component's records.
package agents

// AgentID is a stable opaque identifier for an agent.
type AgentID uint64

// ClassChange records one class transition with its reason code.
type ClassChange struct {
	Tick   uint64 `json:"tick"`
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason"`
}

// ReputationChange records one applied reputation delta.
type ReputationChange struct {
	Tick     uint64  `json:"tick"`
	Category string  `json:"category"`
	Delta    float64 `json:"delta"`
	Context  string  `json:"context"`
}

// CulturalChange records one nudge of a cultural coordinate.
type CulturalChange struct {
	Tick      uint64  `json:"tick"`
	Dimension int     `json:"dimension"`
	Delta     float64 `json:"delta"`
}

// MobilityAttempt records one class-mobility decision.
type MobilityAttempt struct {
	Tick    uint64  `json:"tick"`
	From    int     `json:"from"`
	To      int     `json:"to"`
	Score   float64 `json:"score"`
	Success bool    `json:"success"`
	Reason  string  `json:"reason"`
}

// Agent is the primary entity of the simulation.
type Agent struct {
	ID     AgentID `json:"id"`
	Wealth float64 `json:"wealth"` // non-negative

	// Class. Index into the configured class table, poorest first.
	Class            int    `json:"class"`
	ClassEnteredTick uint64 `json:"class_entered_tick"`

	// Education feeds the mobility score, 0–100.
	Education float64 `json:"education"`

	// Reputation. Scores indexed by configured category order, each [0,100].
	Scores  []float64 `json:"scores"`
	Overall float64   `json:"overall"`
	Tier    string    `json:"tier"`

	// Derived business metrics.
	TrustLevel                float64 `json:"trust_level"`
	Creditworthiness          float64 `json:"creditworthiness"`
	PartnershipAttractiveness float64 `json:"partnership_attractiveness"`

	// Trust attributes. Dimensions ordered per config.TrustDimensions.
	Trustworthiness  [5]float64 `json:"trustworthiness"`
	TrustPropensity  float64    `json:"trust_propensity"`
	TrustSensitivity float64    `json:"trust_sensitivity"`

	// Cultural profile. Coordinates in [0,1] per configured dimension.
	Culture            []float64 `json:"culture"`
	CulturalFluidity   float64   `json:"cultural_fluidity"`
	CulturalResistance float64   `json:"cultural_resistance"`
	CulturalInfluence  float64   `json:"cultural_influence"`

	// Economic preferences derived from the cultural profile.
	EconomicPreferences map[string]float64 `json:"economic_preferences"`

	// Network membership.
	Organizations map[uint64]struct{} `json:"-"`
	Communities   map[uint64]struct{} `json:"-"`

	RevolutionaryTendency float64 `json:"revolutionary_tendency"`

	// Transaction record feeding economic trust.
	TxSuccessRate float64 `json:"tx_success_rate"`
	TxPunctuality float64 `json:"tx_punctuality"`
	TxDefaults    int     `json:"tx_defaults"`
	EconomicTrust float64 `json:"economic_trust"`
	CreditRating  string  `json:"credit_rating"`

	// Decay markers: last tick each subsystem touched the agent.
	LastReputationTick uint64 `json:"last_reputation_tick"`
	LastTrustTick      uint64 `json:"last_trust_tick"`
	LastCultureTick    uint64 `json:"last_culture_tick"`

	// Bounded histories.
	RepHistory      *Ring[ReputationChange] `json:"-"`
	CultureHistory  *Ring[CulturalChange]   `json:"-"`
	MobilityHistory *Ring[MobilityAttempt]  `json:"-"`
	ClassHistory    *Ring[ClassChange]      `json:"-"`

	BornTick uint64 `json:"born_tick"`
}

// Init carries the caller-supplied starting state for registration. Zero
// values fall back to neutral defaults.
type Init struct {
	Wealth                float64            `json:"wealth"`
	Education             float64            `json:"education"`
	Reputation            map[string]float64 `json:"reputation,omitempty"` // category → starting score
	Trustworthiness       map[string]float64 `json:"trustworthiness,omitempty"`
	TrustPropensity       float64            `json:"trust_propensity"`
	TrustSensitivity      float64            `json:"trust_sensitivity"`
	Culture               []float64          `json:"culture,omitempty"`
	CulturalFluidity      float64            `json:"cultural_fluidity"`
	CulturalResistance    float64            `json:"cultural_resistance"`
	CulturalInfluence     float64            `json:"cultural_influence"`
	RevolutionaryTendency float64            `json:"revolutionary_tendency"`
	Parent                *AgentID           `json:"parent,omitempty"` // reputation inheritance source
}

// InOrganization reports membership.
func (a *Agent) InOrganization(orgID uint64) bool {
	_, ok := a.Organizations[orgID]
	return ok
}

// InCommunity reports membership.
func (a *Agent) InCommunity(communityID uint64) bool {
	_, ok := a.Communities[communityID]
	return ok
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampScore bounds v to [0,100].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
