package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/faults"
)

func testAgent(id AgentID) *Agent {
	return &Agent{
		ID:           id,
		ClassHistory: NewRing[ClassChange](10),
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Register(testAgent(1)))
	require.ErrorIs(t, s.Register(testAgent(1)), faults.ErrConflict)
}

func TestGetUnknownNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.Get(7)
	require.ErrorIs(t, err, faults.ErrNotFound)
}

func TestAllIsSortedByID(t *testing.T) {
	s := NewStore()
	for _, id := range []AgentID{5, 1, 9, 3} {
		require.NoError(t, s.Register(testAgent(id)))
	}

	var got []AgentID
	for _, a := range s.All() {
		got = append(got, a.ID)
	}
	assert.Equal(t, []AgentID{1, 3, 5, 9}, got)
}

func TestDeregisterRemoves(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Register(testAgent(2)))
	require.NoError(t, s.Deregister(2))
	assert.False(t, s.Has(2))
	require.ErrorIs(t, s.Deregister(2), faults.ErrNotFound)
}

func TestSetWealthClampsAtZero(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Register(testAgent(1)))

	a, err := s.SetWealth(1, -50)
	require.NoError(t, err)
	assert.Zero(t, a.Wealth)
}

func TestSetClassRecordsHistory(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Register(testAgent(1)))

	a, err := s.SetClass(1, 2, 40, "promotion")
	require.NoError(t, err)
	assert.Equal(t, 2, a.Class)
	assert.Equal(t, uint64(40), a.ClassEnteredTick)

	last, ok := a.ClassHistory.Last()
	require.True(t, ok)
	assert.Equal(t, ClassChange{Tick: 40, From: 0, To: 2, Reason: "promotion"}, last)
}

func TestSetClassSameClassNoHistory(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Register(testAgent(1)))

	a, err := s.SetClass(1, 0, 40, "promotion")
	require.NoError(t, err)
	assert.Zero(t, a.ClassHistory.Len())
	assert.Zero(t, a.ClassEnteredTick)
}
