// The agent store. All mutations of agent records flow through here; the
// core serializes access, so the store itself carries no locks. Iteration is
// always in ascending ID order to keep tick processing deterministic.
package agents

import (
	"fmt"
	"sort"

	"github.com/talgya/polis/internal/faults"
)

// Store is the keyed mapping from agent ID to agent record.
type Store struct {
	agents map[AgentID]*Agent
	order  []AgentID // sorted; rebuilt lazily after removals
	dirty  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{agents: make(map[AgentID]*Agent)}
}

// Register inserts a new agent record. Duplicate IDs conflict.
func (s *Store) Register(a *Agent) error {
	if _, exists := s.agents[a.ID]; exists {
		return fmt.Errorf("%w: agent %d already registered", faults.ErrConflict, a.ID)
	}
	s.agents[a.ID] = a
	s.order = append(s.order, a.ID)
	s.dirty = true
	return nil
}

// Deregister removes an agent record.
func (s *Store) Deregister(id AgentID) error {
	if _, exists := s.agents[id]; !exists {
		return fmt.Errorf("%w: agent %d", faults.ErrNotFound, id)
	}
	delete(s.agents, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the agent record for an ID.
func (s *Store) Get(id AgentID) (*Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: agent %d", faults.ErrNotFound, id)
	}
	return a, nil
}

// Has reports whether the ID is registered.
func (s *Store) Has(id AgentID) bool {
	_, ok := s.agents[id]
	return ok
}

// Len returns the number of registered agents.
func (s *Store) Len() int { return len(s.agents) }

// All returns every agent in ascending ID order.
func (s *Store) All() []*Agent {
	if s.dirty {
		sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
		s.dirty = false
	}
	out := make([]*Agent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.agents[id])
	}
	return out
}

// ByClass returns agents in the given class, ascending ID order.
func (s *Store) ByClass(class int) []*Agent {
	var out []*Agent
	for _, a := range s.All() {
		if a.Class == class {
			out = append(out, a)
		}
	}
	return out
}

// ByCommunity returns agents belonging to a community, ascending ID order.
func (s *Store) ByCommunity(communityID uint64) []*Agent {
	var out []*Agent
	for _, a := range s.All() {
		if a.InCommunity(communityID) {
			out = append(out, a)
		}
	}
	return out
}

// ByOrganization returns agents attached to an organization.
func (s *Store) ByOrganization(orgID uint64) []*Agent {
	var out []*Agent
	for _, a := range s.All() {
		if a.InOrganization(orgID) {
			out = append(out, a)
		}
	}
	return out
}

// SetWealth updates an agent's wealth, clamping below at zero.
func (s *Store) SetWealth(id AgentID, wealth float64) (*Agent, error) {
	a, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if wealth < 0 {
		wealth = 0
	}
	a.Wealth = wealth
	return a, nil
}

// SetClass moves an agent to a class index, recording the reason code.
func (s *Store) SetClass(id AgentID, class int, tick uint64, reason string) (*Agent, error) {
	a, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if class == a.Class {
		return a, nil
	}
	a.ClassHistory.Push(ClassChange{Tick: tick, From: a.Class, To: class, Reason: reason})
	a.Class = class
	a.ClassEnteredTick = tick
	return a, nil
}
