// Agent spawning: seeded starting populations for the runner and for
// scenario tests.
package agents

import (
	"github.com/talgya/polis/internal/entropy"
)

// Spawner generates agent registrations for a simulation run.
type Spawner struct {
	rng    *entropy.Source
	nextID AgentID
	dims   int
}

// NewSpawner creates a spawner drawing from the given stream. dims is the
// number of configured cultural dimensions.
func NewSpawner(rng *entropy.Source, dims int) *Spawner {
	return &Spawner{rng: rng, nextID: 1, dims: dims}
}

// SetNextID sets the next agent ID to be issued (used when restoring state).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// NextID returns the ID the next spawn will use.
func (s *Spawner) NextID() AgentID { return s.nextID }

// SpawnPopulation produces count registrations with plausible spread:
// modest wealth skewed low, education clustered mid-range, cultural vectors
// uniform across the space.
func (s *Spawner) SpawnPopulation(count int) []Registration {
	out := make([]Registration, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.spawnOne())
	}
	return out
}

// Registration pairs an issued ID with its Init.
type Registration struct {
	ID   AgentID
	Init Init
}

func (s *Spawner) spawnOne() Registration {
	id := s.nextID
	s.nextID++

	culture := make([]float64, s.dims)
	for d := range culture {
		culture[d] = s.rng.Float()
	}

	// Wealth: most agents start poor, a thin tail starts comfortable.
	wealth := s.rng.Range(50, 2_000)
	if s.rng.Float() < 0.1 {
		wealth = s.rng.Range(10_000, 150_000)
	}

	trust := map[string]float64{
		"competence":     s.rng.Range(0.35, 0.65),
		"benevolence":    s.rng.Range(0.35, 0.65),
		"integrity":      s.rng.Range(0.35, 0.65),
		"predictability": s.rng.Range(0.35, 0.65),
		"transparency":   s.rng.Range(0.35, 0.65),
	}

	return Registration{
		ID: id,
		Init: Init{
			Wealth:                wealth,
			Education:             s.rng.Range(20, 85),
			Trustworthiness:       trust,
			TrustPropensity:       s.rng.Range(0.3, 0.7),
			TrustSensitivity:      s.rng.Range(0.3, 0.7),
			Culture:               culture,
			CulturalFluidity:      s.rng.Range(0.2, 0.8),
			CulturalResistance:    s.rng.Range(0.1, 0.6),
			CulturalInfluence:     s.rng.Range(0.3, 0.7),
			RevolutionaryTendency: s.rng.Range(0, 0.3),
		},
	}
}
