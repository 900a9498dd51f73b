// Package events provides the typed pub/sub bus. Engines stage events during
// the compute phase; the core flushes them after the commit barrier so
// subscribers only ever observe committed state, in a fixed stage order.
package events

import (
	"sort"
	"sync"
)

// Type names a published event.
type Type string

const (
	ReputationUpdated   Type = "reputation_updated"
	ReputationMilestone Type = "reputation_milestone"
	PublicIncident      Type = "public_incident"

	TrustUpdated                 Type = "trust_updated"
	TrustRelationshipEstablished Type = "trust_relationship_established"
	TrustPropagationStarted      Type = "trust_propagation_started"

	ClassChange           Type = "class_change"
	MobilityAttemptFailed Type = "mobility_attempt_failed"
	OpportunitySuccess    Type = "opportunity_success"
	OpportunityMissed     Type = "opportunity_missed"
	RevolutionOutcome     Type = "revolution_outcome"
	WealthInheritance     Type = "wealth_inheritance"

	CulturalShift              Type = "cultural_shift"
	CulturalEraTransition      Type = "cultural_era_transition"
	RevolutionaryCulturalShift Type = "revolutionary_cultural_shift"

	OrganizationFormed    Type = "organization_formed"
	OrganizationDissolved Type = "organization_dissolved"
	MemberJoined          Type = "member_joined"
	MemberLeft            Type = "member_left"
	VoteDelegated         Type = "vote_delegated"

	Sanitized Type = "sanitized"
	Shutdown  Type = "shutdown"
)

// Stage orders event emission within a tick:
// reputation → trust → class-mobility → culture → scheduler meta.
type Stage uint8

const (
	StageReputation Stage = iota
	StageTrust
	StageMobility
	StageCulture
	StageMeta
)

// Event is one committed occurrence.
type Event struct {
	ID    string         `json:"id"`
	Seq   uint64         `json:"seq"`
	Tick  uint64         `json:"tick"`
	Stage Stage          `json:"stage"`
	Type  Type           `json:"type"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Bus fans committed events out to subscribers. A slow consumer never blocks
// scheduling: undeliverable events land in a bounded overflow log instead.
type Bus struct {
	idgen func() string

	pending []Event
	seq     uint64

	// mu guards subs, overflow, and dropped: the only bus state reachable
	// from outside the core's unit-of-work lock, via subscriber cancels.
	mu     sync.Mutex
	subs   []chan Event
	buffer int

	recent    []Event
	recentCap int

	overflow    []Event
	overflowCap int
	dropped     uint64
}

// NewBus creates a bus. idgen supplies event identifiers; drawing them from
// the seeded entropy stream keeps runs byte-identical.
func NewBus(buffer, overflowCap int, idgen func() string) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	if overflowCap < 1 {
		overflowCap = 1
	}
	return &Bus{
		idgen:       idgen,
		buffer:      buffer,
		recentCap:   1000,
		overflowCap: overflowCap,
	}
}

// Subscribe registers a consumer. The returned cancel detaches it and may be
// called from any goroutine; the channel closes only after it can no longer
// receive deliveries.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

// Stage queues an event for the next flush. The identifier is assigned here
// so identifier draws follow staging order deterministically.
func (b *Bus) Stage(tick uint64, stage Stage, typ Type, meta map[string]any) {
	b.pending = append(b.pending, Event{
		ID:    b.idgen(),
		Tick:  tick,
		Stage: stage,
		Type:  typ,
		Meta:  meta,
	})
}

// Flush publishes staged events in stage order (stable within a stage) and
// clears the pending queue.
func (b *Bus) Flush() []Event {
	if len(b.pending) == 0 {
		return nil
	}
	sort.SliceStable(b.pending, func(i, j int) bool {
		return b.pending[i].Stage < b.pending[j].Stage
	})

	out := make([]Event, 0, len(b.pending))
	for _, ev := range b.pending {
		b.seq++
		ev.Seq = b.seq
		out = append(out, ev)
		b.deliver(ev)

		b.recent = append(b.recent, ev)
		if len(b.recent) > b.recentCap {
			b.recent = b.recent[len(b.recent)-b.recentCap:]
		}
	}
	b.pending = b.pending[:0]
	return out
}

func (b *Bus) deliver(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			// Slow consumer: spill to the overflow log rather than block.
			b.overflow = append(b.overflow, ev)
			if len(b.overflow) > b.overflowCap {
				b.overflow = b.overflow[len(b.overflow)-b.overflowCap:]
			}
			b.dropped++
		}
	}
}

// Recent returns up to n of the most recently published events, oldest first.
func (b *Bus) Recent(n int) []Event {
	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]Event, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// Overflow returns the spilled events and how many deliveries were diverted.
func (b *Bus) Overflow() ([]Event, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.overflow))
	copy(out, b.overflow)
	return out, b.dropped
}

// PendingCount reports staged-but-unflushed events. Used by tests.
func (b *Bus) PendingCount() int { return len(b.pending) }
