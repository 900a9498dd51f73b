package trust

import "github.com/talgya/polis/internal/agents"

// NetworkAnalyzer is a plug point for graph analytics the core does not
// compute itself (clustering coefficient, small-worldness, community
// detection). No default implementation ships; integrations supply their
// own.
type NetworkAnalyzer interface {
	ClusteringCoefficient(id agents.AgentID) (float64, error)
	SmallWorldness() (float64, error)
	DetectCommunities() (map[agents.AgentID]int, error)
}
