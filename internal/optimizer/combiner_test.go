package optimizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
)

func epPlayer(id int, team string, ep float64) models.Player {
	return mkPlayer(id, models.Midfielder, team, 10, map[string]float64{models.MetricEPNext: ep})
}

func TestCombine_RanksAndTruncates(t *testing.T) {
	groups := [][]models.Squad{
		{models.NewSquad(epPlayer(1, "A", 5)), models.NewSquad(epPlayer(2, "B", 1))},
		{models.NewSquad(epPlayer(3, "C", 3)), models.NewSquad(epPlayer(4, "D", 4))},
	}

	res, err := Combine(groups, CombineOptions{RankKeys: []string{models.EvalEPNext}, TopN: 3})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOK, res.Status)
	assert.Equal(t, 4, res.Considered)
	require.Len(t, res.Squads, 3)

	assert.Equal(t, []int{1, 4}, res.Squads[0].Squad.IDs())
	assert.Equal(t, []int{1, 3}, res.Squads[1].Squad.IDs())
	assert.Equal(t, []int{2, 4}, res.Squads[2].Squad.IDs())
	assert.InDelta(t, 9.0, res.Squads[0].Evaluation.EPNext, 1e-9)
}

func TestCombine_SecondaryKeyBreaksTies(t *testing.T) {
	cheap := mkPlayer(1, models.Forward, "A", 10, map[string]float64{models.MetricEPNext: 2})
	pricey := mkPlayer(2, models.Forward, "B", 30, map[string]float64{models.MetricEPNext: 2})
	groups := [][]models.Squad{{models.NewSquad(cheap), models.NewSquad(pricey)}}

	res, err := Combine(groups, CombineOptions{RankKeys: []string{models.EvalEPNext, models.EvalCost}})
	require.NoError(t, err)
	require.Len(t, res.Squads, 2)
	assert.Equal(t, 2, res.Squads[0].Squad.Players[0].ID)
}

func TestCombine_DiscardsDuplicatesAndTeamOverflow(t *testing.T) {
	shared := epPlayer(1, "A", 5)
	groups := [][]models.Squad{
		{models.NewSquad(shared)},
		{models.NewSquad(shared), models.NewSquad(epPlayer(2, "A", 1)), models.NewSquad(epPlayer(3, "B", 1))},
	}
	cs := models.ConstraintSet{Budget: 100, RequiredCount: 2, DefaultTeamMax: 1}

	res, err := Combine(groups, CombineOptions{RankKeys: []string{models.EvalEPNext}, Constraints: &cs})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Considered)
	assert.Equal(t, 2, res.Discarded)
	require.Len(t, res.Squads, 1)
	assert.Equal(t, []int{1, 3}, res.Squads[0].Squad.IDs())
	assert.False(t, res.Squads[0].Squad.HasDuplicates())
}

func TestCombine_DiscardsUnavailableAndPositionOverflow(t *testing.T) {
	fit := epPlayer(1, "A", 3).WithMetric(models.MetricAvailability, 100)
	doubtful := epPlayer(2, "B", 9).WithMetric(models.MetricAvailability, 50)
	striker := mkPlayer(3, models.Forward, "C", 10, map[string]float64{models.MetricEPNext: 1, models.MetricAvailability: 100})
	midfielder := epPlayer(4, "D", 2).WithMetric(models.MetricAvailability, 100)

	groups := [][]models.Squad{
		{models.NewSquad(fit), models.NewSquad(doubtful)},
		{models.NewSquad(striker), models.NewSquad(midfielder)},
	}
	cs := models.ConstraintSet{
		Budget:        100,
		RequiredCount: 2,
		PositionBounds: map[models.Position]models.PositionBound{
			models.Midfielder: {Min: 1, Max: 1},
			models.Forward:    {Min: 1, Max: 1},
		},
		RequireFullAvailability: true,
	}

	res, err := Combine(groups, CombineOptions{RankKeys: []string{models.EvalEPNext}, Constraints: &cs})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Considered)
	assert.Equal(t, 3, res.Discarded)
	require.Len(t, res.Squads, 1)
	assert.Equal(t, []int{1, 3}, res.Squads[0].Squad.IDs())
}

func TestCombine_EmptyCombination(t *testing.T) {
	res, err := Combine(nil, CombineOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmptyCombination, res.Status)

	res, err = Combine([][]models.Squad{{models.NewSquad(epPlayer(1, "A", 1))}, {}}, CombineOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmptyCombination, res.Status)

	same := models.NewSquad(epPlayer(1, "A", 1))
	res, err = Combine([][]models.Squad{{same}, {same}}, CombineOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmptyCombination, res.Status)
	assert.Equal(t, 1, res.Discarded)
}

func TestCombine_UnknownRankKey(t *testing.T) {
	groups := [][]models.Squad{{models.NewSquad(epPlayer(1, "A", 1))}}

	_, err := Combine(groups, CombineOptions{RankKeys: []string{"nope"}})
	assert.ErrorIs(t, err, ErrUnknownRankKey)

	p := epPlayer(2, "A", 1).WithMetric("w_top", 0.4)
	res, err := Combine([][]models.Squad{{models.NewSquad(p)}}, CombineOptions{
		RankKeys:     []string{"avg_w_top"},
		MeanPrefixes: []string{"w_"},
	})
	require.NoError(t, err)
	v, ok := res.Squads[0].Evaluation.Field("avg_w_top")
	assert.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-9)
}

func TestCombinationCount(t *testing.T) {
	s := models.NewSquad()
	assert.Equal(t, 0, CombinationCount(nil))
	assert.Equal(t, 6, CombinationCount([][]models.Squad{{s, s}, {s, s, s}}))
	assert.Equal(t, 0, CombinationCount([][]models.Squad{{s}, {}}))

	wide := make([]models.Squad, 1<<16)
	assert.Equal(t, math.MaxInt, CombinationCount([][]models.Squad{wide, wide, wide, wide, wide}))
}
