// Package social tracks the collective structures agents belong to:
// organizations of several kinds, looser communities, and advisory vote
// delegation within an organization.
package social

import (
	"fmt"
	"sort"

	"github.com/talgya/polis/internal/agents"
	"github.com/talgya/polis/internal/events"
	"github.com/talgya/polis/internal/faults"
)

// Organization kinds.
const (
	KindCorporation  = "corporation"
	KindUnion        = "union"
	KindCartel       = "cartel"
	KindCriminal     = "criminal"
	KindProfessional = "professional"
)

var validKinds = map[string]struct{}{
	KindCorporation:  {},
	KindUnion:        {},
	KindCartel:       {},
	KindCriminal:     {},
	KindProfessional: {},
}

// Organization is a formal membership structure with a founder and a kind.
type Organization struct {
	ID          uint64
	Name        string
	Kind        string
	Founder     agents.AgentID
	CreatedTick uint64
	Members     map[agents.AgentID]struct{}

	// Advisory delegations recorded per member. A delegation never moves
	// decision weight; it is observable state only.
	Delegations map[agents.AgentID]agents.AgentID
}

// Community is an informal grouping with no founder or kind.
type Community struct {
	ID          uint64
	Name        string
	CreatedTick uint64
	Members     map[agents.AgentID]struct{}
}

// Registry owns all organizations and communities.
type Registry struct {
	store *agents.Store
	bus   *events.Bus

	orgs        map[uint64]*Organization
	communities map[uint64]*Community
	nextID      uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(store *agents.Store, bus *events.Bus) *Registry {
	return &Registry{
		store:       store,
		bus:         bus,
		orgs:        make(map[uint64]*Organization),
		communities: make(map[uint64]*Community),
		nextID:      1,
	}
}

// FormOrganization creates an organization with the founder as its first
// member.
func (r *Registry) FormOrganization(tick uint64, name, kind string, founder agents.AgentID) (*Organization, error) {
	if _, ok := validKinds[kind]; !ok {
		return nil, fmt.Errorf("%w: organization kind %q", faults.ErrInvalidArgument, kind)
	}
	a, err := r.store.Get(founder)
	if err != nil {
		return nil, err
	}

	org := &Organization{
		ID:          r.nextID,
		Name:        name,
		Kind:        kind,
		Founder:     founder,
		CreatedTick: tick,
		Members:     map[agents.AgentID]struct{}{founder: {}},
		Delegations: make(map[agents.AgentID]agents.AgentID),
	}
	r.nextID++
	r.orgs[org.ID] = org
	a.Organizations[org.ID] = struct{}{}

	r.bus.Stage(tick, events.StageMeta, events.OrganizationFormed, map[string]any{
		"org": org.ID, "name": name, "kind": kind, "founder": uint64(founder),
	})
	return org, nil
}

// DissolveOrganization removes the organization and detaches every member.
func (r *Registry) DissolveOrganization(tick uint64, id uint64) error {
	org, ok := r.orgs[id]
	if !ok {
		return fmt.Errorf("%w: organization %d", faults.ErrNotFound, id)
	}
	for member := range org.Members {
		if a, err := r.store.Get(member); err == nil {
			delete(a.Organizations, id)
		}
	}
	delete(r.orgs, id)

	r.bus.Stage(tick, events.StageMeta, events.OrganizationDissolved, map[string]any{
		"org": id, "name": org.Name, "kind": org.Kind,
	})
	return nil
}

// Organization looks an organization up.
func (r *Registry) Organization(id uint64) (*Organization, error) {
	org, ok := r.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: organization %d", faults.ErrNotFound, id)
	}
	return org, nil
}

// Join adds an agent to an organization. Joining twice is a conflict.
func (r *Registry) Join(tick uint64, orgID uint64, id agents.AgentID) error {
	org, ok := r.orgs[orgID]
	if !ok {
		return fmt.Errorf("%w: organization %d", faults.ErrNotFound, orgID)
	}
	a, err := r.store.Get(id)
	if err != nil {
		return err
	}
	if _, member := org.Members[id]; member {
		return fmt.Errorf("%w: agent %d already in organization %d", faults.ErrConflict, id, orgID)
	}

	org.Members[id] = struct{}{}
	a.Organizations[orgID] = struct{}{}
	r.bus.Stage(tick, events.StageMeta, events.MemberJoined, map[string]any{
		"org": orgID, "agent": uint64(id),
	})
	return nil
}

// Leave removes an agent from an organization, dropping any delegation it
// held and any delegation pointed at it.
func (r *Registry) Leave(tick uint64, orgID uint64, id agents.AgentID) error {
	org, ok := r.orgs[orgID]
	if !ok {
		return fmt.Errorf("%w: organization %d", faults.ErrNotFound, orgID)
	}
	if _, member := org.Members[id]; !member {
		return fmt.Errorf("%w: agent %d not in organization %d", faults.ErrNotFound, id, orgID)
	}

	delete(org.Members, id)
	delete(org.Delegations, id)
	for from, to := range org.Delegations {
		if to == id {
			delete(org.Delegations, from)
		}
	}
	if a, err := r.store.Get(id); err == nil {
		delete(a.Organizations, orgID)
	}
	r.bus.Stage(tick, events.StageMeta, events.MemberLeft, map[string]any{
		"org": orgID, "agent": uint64(id),
	})
	return nil
}

// DelegateVote records an advisory delegation between two members of the same
// organization. It carries no mechanical weight.
func (r *Registry) DelegateVote(tick uint64, orgID uint64, from, to agents.AgentID) error {
	org, ok := r.orgs[orgID]
	if !ok {
		return fmt.Errorf("%w: organization %d", faults.ErrNotFound, orgID)
	}
	if from == to {
		return fmt.Errorf("%w: self delegation", faults.ErrInvalidArgument)
	}
	if _, member := org.Members[from]; !member {
		return fmt.Errorf("%w: agent %d not in organization %d", faults.ErrNotFound, from, orgID)
	}
	if _, member := org.Members[to]; !member {
		return fmt.Errorf("%w: agent %d not in organization %d", faults.ErrNotFound, to, orgID)
	}

	org.Delegations[from] = to
	r.bus.Stage(tick, events.StageMeta, events.VoteDelegated, map[string]any{
		"org": orgID, "from": uint64(from), "to": uint64(to),
	})
	return nil
}

// IsUnionMember reports whether the agent belongs to any union-kind
// organization. Wired into the mobility engine's revolution arithmetic.
func (r *Registry) IsUnionMember(id agents.AgentID) bool {
	a, err := r.store.Get(id)
	if err != nil {
		return false
	}
	for orgID := range a.Organizations {
		if org, ok := r.orgs[orgID]; ok && org.Kind == KindUnion {
			return true
		}
	}
	return false
}

// FormCommunity creates an informal community.
func (r *Registry) FormCommunity(tick uint64, name string) *Community {
	c := &Community{
		ID:          r.nextID,
		Name:        name,
		CreatedTick: tick,
		Members:     make(map[agents.AgentID]struct{}),
	}
	r.nextID++
	r.communities[c.ID] = c
	return c
}

// JoinCommunity adds an agent to a community. Idempotent.
func (r *Registry) JoinCommunity(commID uint64, id agents.AgentID) error {
	c, ok := r.communities[commID]
	if !ok {
		return fmt.Errorf("%w: community %d", faults.ErrNotFound, commID)
	}
	a, err := r.store.Get(id)
	if err != nil {
		return err
	}
	c.Members[id] = struct{}{}
	a.Communities[commID] = struct{}{}
	return nil
}

// LeaveCommunity removes an agent from a community.
func (r *Registry) LeaveCommunity(commID uint64, id agents.AgentID) error {
	c, ok := r.communities[commID]
	if !ok {
		return fmt.Errorf("%w: community %d", faults.ErrNotFound, commID)
	}
	delete(c.Members, id)
	if a, err := r.store.Get(id); err == nil {
		delete(a.Communities, commID)
	}
	return nil
}

// DropAgent detaches an agent from every organization and community on
// deregistration, without staging membership events.
func (r *Registry) DropAgent(id agents.AgentID) {
	for _, org := range r.orgs {
		delete(org.Members, id)
		delete(org.Delegations, id)
		for from, to := range org.Delegations {
			if to == id {
				delete(org.Delegations, from)
			}
		}
	}
	for _, c := range r.communities {
		delete(c.Members, id)
	}
}

// Restore reinstates registry state from a snapshot without staging events.
func (r *Registry) Restore(orgs []*Organization, communities []*Community) {
	max := r.nextID
	for _, org := range orgs {
		r.orgs[org.ID] = org
		if org.ID >= max {
			max = org.ID + 1
		}
	}
	for _, c := range communities {
		r.communities[c.ID] = c
		if c.ID >= max {
			max = c.ID + 1
		}
	}
	r.nextID = max
}

// Organizations returns all organizations ordered by identifier.
func (r *Registry) Organizations() []*Organization {
	out := make([]*Organization, 0, len(r.orgs))
	for _, org := range r.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Communities returns all communities ordered by identifier.
func (r *Registry) Communities() []*Community {
	out := make([]*Community, 0, len(r.communities))
	for _, c := range r.communities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
