package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/polis/internal/faults"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestWeightMagnitudesMustSumToOne(t *testing.T) {
	cfg := Default()
	cfg.ReputationWeights["philanthropy"] = 0.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrInvalidConfig))
}

func TestNegativeWeightCountsByMagnitude(t *testing.T) {
	cfg := Default()
	// criminal_activity carries -0.10; its magnitude is already part of the
	// unit sum, so the defaults pass.
	require.NoError(t, cfg.Validate())
	assert.Negative(t, cfg.ReputationWeights["criminal_activity"])
}

func TestCategoryWithoutWeightRejected(t *testing.T) {
	cfg := Default()
	cfg.ReputationCategories = append(cfg.ReputationCategories, "bravery")
	require.ErrorIs(t, cfg.Validate(), faults.ErrInvalidConfig)
}

func TestClassFloorsMustBeOrdered(t *testing.T) {
	cfg := Default()
	cfg.Classes[1].WealthFloor = 2_000_000
	require.ErrorIs(t, cfg.Validate(), faults.ErrInvalidConfig)
}

func TestRevolutionaryShiftLengthChecked(t *testing.T) {
	cfg := Default()
	cfg.RevolutionaryShift = cfg.RevolutionaryShift[:2]
	require.ErrorIs(t, cfg.Validate(), faults.ErrInvalidConfig)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("POLIS_SEED", "99")
	t.Setenv("POLIS_API_PORT", "9191")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), cfg.Runtime.Seed)
	assert.Equal(t, 9191, cfg.Runtime.APIPort)
}

func TestClassIndexForWealth(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0, cfg.ClassIndexForWealth(0))
	assert.Equal(t, 0, cfg.ClassIndexForWealth(999))
	assert.Equal(t, 1, cfg.ClassIndexForWealth(1_000))
	assert.Equal(t, 2, cfg.ClassIndexForWealth(55_000))
	assert.Equal(t, 4, cfg.ClassIndexForWealth(3_000_000))
}

func TestCategoryIndex(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0, cfg.CategoryIndex("business_integrity"))
	assert.Equal(t, -1, cfg.CategoryIndex("unknown"))
}

func TestTrustDimIndex(t *testing.T) {
	assert.Equal(t, 2, TrustDimIndex("integrity"))
	assert.Equal(t, -1, TrustDimIndex("charisma"))
}
