package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("MILP_MAX_NODES", "1234")
	t.Setenv("DATABASE_DRIVER", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1234, cfg.MILPMaxNodes)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 20, cfg.SamplerDrawsPerGroup)
	assert.Equal(t, "1h0m0s", cfg.CacheTTL.String())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	assert.Equal(t, int64(7), (&Config{RandomSeed: 7}).Seed())
	assert.NotZero(t, (&Config{}).Seed())
}

func TestDefaultRunConfig_IsValid(t *testing.T) {
	rc := DefaultRunConfig()
	require.NoError(t, rc.Validate())

	total := 0
	for _, g := range rc.PickGroups {
		total += g.Budget
	}
	assert.Equal(t, DefaultBudget, total)
}

func TestDecodeRunConfig_FillsDefaults(t *testing.T) {
	rc, err := DecodeRunConfig(strings.NewReader(`{"top_n": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, rc.TopN)
	assert.Equal(t, DefaultSquadSize, rc.Constraints.RequiredCount)
	assert.Len(t, rc.PickGroups, 4)
	assert.Equal(t, DefaultWeightColumn, rc.Weights.Name)
}

func TestDecodeRunConfig_CustomConstraintsDropDefaultGroups(t *testing.T) {
	rc, err := DecodeRunConfig(strings.NewReader(`{
		"constraints": {
			"budget": 200,
			"required_count": 2,
			"position_bounds": {"FWD": {"min": 2, "max": 2}}
		},
		"weights": {"name": "w", "add": {"ep_next": 1}}
	}`))
	require.NoError(t, err)
	assert.Empty(t, rc.PickGroups)
	assert.Equal(t, models.PositionBound{Min: 2, Max: 2}, rc.Constraints.PositionBounds[models.Forward])
	assert.Equal(t, []string{models.EvalEPNext, models.EvalPoints}, rc.RankKeys)
}

func TestDecodeRunConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeRunConfig(strings.NewReader(`{"budgett": 5}`))
	assert.Error(t, err)
}

func TestRunConfig_CrossFieldChecks(t *testing.T) {
	rc := DefaultRunConfig()
	rc.PickGroups[0].Budget = 500
	assert.ErrorContains(t, rc.Validate(), "exceed budget")

	rc = DefaultRunConfig()
	rc.PickGroups[1].Positions = map[models.Position]int{models.Forward: 2}
	assert.ErrorContains(t, rc.Validate(), "players")

	rc = DefaultRunConfig()
	rc.PickGroups[1].Name = rc.PickGroups[0].Name
	assert.ErrorContains(t, rc.Validate(), "duplicate pick group")

	rc = DefaultRunConfig()
	rc.TopN = -1
	assert.Error(t, rc.Validate())

	rc = DefaultRunConfig()
	rc.Constraints.PositionBounds[models.Forward] = models.PositionBound{Min: 4, Max: 2}
	assert.ErrorIs(t, rc.Validate(), models.ErrInvalidConstraints)
}
