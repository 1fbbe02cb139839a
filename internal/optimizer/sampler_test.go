package optimizer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

const weightKey = "w_test"

func weighted(id int, pos models.Position, team string, cost int, w float64) models.Player {
	return mkPlayer(id, pos, team, cost, map[string]float64{weightKey: w})
}

func newTestSampler() *Sampler {
	return NewSampler(0, 0, logger.Discard())
}

func TestSampler_TeamQuotaNeverExceeded(t *testing.T) {
	players := []models.Player{
		weighted(1, models.Midfielder, "X", 50, 1),
		weighted(2, models.Midfielder, "X", 50, 1),
		weighted(3, models.Midfielder, "Y", 50, 1),
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    200,
		Positions: map[models.Position]int{models.Midfielder: 2},
		TeamQuota: FullTeamQuota(players, 1),
	}

	s := newTestSampler()
	for seed := int64(0); seed < 50; seed++ {
		sel, ok := s.Pick(rand.New(rand.NewSource(seed)), req)
		require.True(t, ok, "seed %d", seed)
		assert.Equal(t, 2, sel.Squad.Len())
		assert.Equal(t, 1, sel.Squad.CountByTeam()["X"], "seed %d", seed)
		assert.True(t, sel.Squad.Contains(3))
		assert.Equal(t, 100, sel.Leftover)
	}
}

func TestSampler_BacktracksOutOfDeadEnd(t *testing.T) {
	// the heavy goalkeeper leaves no room for any defender
	players := []models.Player{
		weighted(1, models.Goalkeeper, "A", 90, 1),
		weighted(2, models.Goalkeeper, "B", 10, 0.001),
		weighted(3, models.Defender, "C", 80, 0.5),
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    100,
		Positions: map[models.Position]int{models.Goalkeeper: 1, models.Defender: 1},
	}

	s := newTestSampler()
	for seed := int64(0); seed < 30; seed++ {
		sel, ok := s.Pick(rand.New(rand.NewSource(seed)), req)
		require.True(t, ok, "seed %d", seed)
		assert.Equal(t, []int{2, 3}, sel.Squad.IDs())
		assert.Equal(t, 10, sel.Leftover)
	}
}

func TestSampler_ZeroWeightNeverDrawn(t *testing.T) {
	players := []models.Player{
		weighted(1, models.Forward, "A", 10, 0),
		weighted(2, models.Forward, "B", 10, 0.3),
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    100,
		Positions: map[models.Position]int{models.Forward: 1},
	}

	s := newTestSampler()
	for seed := int64(0); seed < 30; seed++ {
		sel, ok := s.Pick(rand.New(rand.NewSource(seed)), req)
		require.True(t, ok)
		assert.Equal(t, []int{2}, sel.Squad.IDs())
		assert.Zero(t, sel.Degenerate)
	}
}

func TestSampler_AllZeroWeightsFallBackToUniform(t *testing.T) {
	players := []models.Player{
		weighted(1, models.Forward, "A", 10, 0),
		weighted(2, models.Forward, "B", 10, 0),
		weighted(3, models.Forward, "C", 10, 0),
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    100,
		Positions: map[models.Position]int{models.Forward: 1},
	}

	s := newTestSampler()
	seen := make(map[int]bool)
	for seed := int64(0); seed < 60; seed++ {
		sel, ok := s.Pick(rand.New(rand.NewSource(seed)), req)
		require.True(t, ok)
		assert.Equal(t, 1, sel.Degenerate)
		seen[sel.Squad.Players[0].ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestPickState_DrawCountsOnlyAllZeroAsDegenerate(t *testing.T) {
	req := PickRequest{
		Players: []models.Player{
			mkPlayer(1, models.Forward, "A", 10, map[string]float64{"w": 0}),
			mkPlayer(2, models.Forward, "B", 10, map[string]float64{"w": 0}),
			mkPlayer(3, models.Forward, "C", 10, map[string]float64{"w": 0.4}),
		},
		WeightKey: "w",
		Budget:    100,
		Positions: map[models.Position]int{models.Forward: 1},
	}
	st := newPickState(req)
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 10; i++ {
		assert.Equal(t, 2, st.draw(rng, []int{0, 1, 2}))
	}
	assert.Zero(t, st.degenerate)

	got := st.draw(rng, []int{0, 1})
	assert.Contains(t, []int{0, 1}, got)
	assert.Equal(t, 1, st.degenerate)
}

func TestSampler_BudgetBelowCheapestFails(t *testing.T) {
	players := []models.Player{
		weighted(1, models.Goalkeeper, "A", 40, 1),
		weighted(2, models.Defender, "B", 45, 1),
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    60,
		Positions: map[models.Position]int{models.Goalkeeper: 1, models.Defender: 1},
	}

	_, ok := newTestSampler().Pick(rand.New(rand.NewSource(1)), req)
	assert.False(t, ok)
}

func TestSampler_MissingTeamIsNotSelectable(t *testing.T) {
	players := []models.Player{
		weighted(1, models.Forward, "A", 10, 1),
		weighted(2, models.Forward, "B", 10, 1),
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    100,
		Positions: map[models.Position]int{models.Forward: 1},
		TeamQuota: map[string]int{"B": 3},
	}

	sel, ok := newTestSampler().Pick(rand.New(rand.NewSource(7)), req)
	require.True(t, ok)
	assert.Equal(t, []int{2}, sel.Squad.IDs())
}

func TestSampler_AttemptBudgetBoundsSearch(t *testing.T) {
	players := make([]models.Player, 0, 30)
	for i := 1; i <= 30; i++ {
		players = append(players, weighted(i, models.Defender, "T", 10, 1))
	}
	// three defenders can never fit in 25
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    25,
		Positions: map[models.Position]int{models.Defender: 3},
	}

	s := NewSampler(0, 50, logger.Discard())
	_, ok := s.Pick(rand.New(rand.NewSource(3)), req)
	assert.False(t, ok)
}

func TestSampler_SameSeedSameSelection(t *testing.T) {
	players := make([]models.Player, 0, 12)
	for i := 1; i <= 12; i++ {
		players = append(players, weighted(i, models.Positions[i%4], "T", 5+i, float64(i)/12))
	}
	req := PickRequest{
		Players:   players,
		WeightKey: weightKey,
		Budget:    60,
		Positions: map[models.Position]int{models.Goalkeeper: 1, models.Defender: 1, models.Forward: 1},
	}

	s := newTestSampler()
	a, okA := s.Pick(rand.New(rand.NewSource(42)), req)
	b, okB := s.Pick(rand.New(rand.NewSource(42)), req)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a.Squad.IDs(), b.Squad.IDs())
}
