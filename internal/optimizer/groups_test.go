package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

func samplePool() []models.Player {
	var players []models.Player
	id := 1
	for _, pos := range models.Positions {
		for i := 0; i < 6; i++ {
			players = append(players, mkPlayer(id, pos, fmt.Sprintf("T%d", id%5), 40+5*i, map[string]float64{
				models.MetricEPNext:      float64(i + 1),
				models.MetricTotalPoints: float64(10 * i),
			}))
			id++
		}
	}
	return players
}

func sampleGroups() []PickGroup {
	return []PickGroup{
		{
			Name:      "core",
			Weights:   models.WeightSpec{Name: "core", Additive: map[string]float64{models.MetricEPNext: 1}},
			Budget:    150,
			Positions: map[models.Position]int{models.Goalkeeper: 1, models.Defender: 1, models.Forward: 1},
		},
		{
			Name:      "bench",
			Weights:   models.WeightSpec{Name: "bench", Additive: map[string]float64{models.MetricTotalPoints: 1}},
			Budget:    100,
			Positions: map[models.Position]int{models.Midfielder: 2},
		},
	}
}

func sampleConstraints() models.ConstraintSet {
	return models.ConstraintSet{
		Budget:         250,
		RequiredCount:  5,
		PositionBounds: exactBounds(1, 1, 2, 1),
		DefaultTeamMax: 3,
	}
}

func TestSampleGroups_SquadsSatisfyConstraints(t *testing.T) {
	p := NewPipeline(NewSampler(0, 0, logger.Discard()), logger.Discard())
	cs := sampleConstraints()

	var events []ProgressEvent
	res, err := p.SampleGroups(context.Background(), rand.New(rand.NewSource(11)), samplePool(), cs, sampleGroups(),
		PipelineOptions{DrawsPerGroup: 8, TopPerGroup: 3, TopN: 5, RankKeys: []string{"avg_w_core", models.EvalEPNext}, Concurrency: 4},
		func(e ProgressEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.Equal(t, models.StatusOK, res.Status)
	require.NotEmpty(t, res.Squads)
	assert.LessOrEqual(t, len(res.Squads), 5)

	for _, ranked := range res.Squads {
		assert.NoError(t, cs.Check(ranked.Squad))
		_, ok := ranked.Evaluation.Field("avg_w_bench")
		assert.True(t, ok)
	}

	require.Len(t, events, 2)
	assert.Equal(t, "core", events[0].Group)
	assert.Equal(t, res.RunID, events[1].RunID)

	require.Len(t, res.Groups, 2)
	assert.Zero(t, res.Groups[0].ExtraBudget)
	assert.Equal(t, res.Groups[0].Draws[0].Leftover, res.Groups[1].ExtraBudget)
	assert.LessOrEqual(t, len(res.Groups[0].Draws), 3)
	for i := 1; i < len(res.Groups[0].Draws); i++ {
		assert.GreaterOrEqual(t, res.Groups[0].Draws[i-1].MeanWeight, res.Groups[0].Draws[i].MeanWeight)
	}
}

func TestSampleGroups_RequireFullAvailability(t *testing.T) {
	pool := samplePool()
	for i := range pool {
		availability := 100.0
		if i%2 == 1 {
			availability = 0
		}
		pool[i] = pool[i].WithMetric(models.MetricAvailability, availability)
	}
	cs := sampleConstraints()
	cs.RequireFullAvailability = true

	p := NewPipeline(nil, logger.Discard())
	res, err := p.SampleGroups(context.Background(), rand.New(rand.NewSource(17)), pool, cs, sampleGroups(),
		PipelineOptions{DrawsPerGroup: 10, TopPerGroup: 4, TopN: 10, RankKeys: []string{models.EvalEPNext}}, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusOK, res.Status)
	require.NotEmpty(t, res.Squads)

	for _, ranked := range res.Squads {
		assert.NoError(t, cs.Check(ranked.Squad))
		for _, player := range ranked.Squad.Players {
			assert.Equal(t, models.FullAvailability, player.Availability(), "player %d", player.ID)
		}
	}
	for _, g := range res.Groups {
		for _, d := range g.Draws {
			for _, player := range d.Squad.Players {
				assert.Equal(t, models.FullAvailability, player.Availability(), "group %s player %d", g.Name, player.ID)
			}
		}
	}
}

func TestSampleGroups_Deterministic(t *testing.T) {
	p := NewPipeline(nil, logger.Discard())
	opts := PipelineOptions{DrawsPerGroup: 6, TopPerGroup: 2, TopN: 3, RankKeys: []string{models.EvalEPNext}, Concurrency: 3}

	run := func() [][]int {
		res, err := p.SampleGroups(context.Background(), rand.New(rand.NewSource(5)), samplePool(), sampleConstraints(), sampleGroups(), opts, nil)
		require.NoError(t, err)
		ids := make([][]int, len(res.Squads))
		for i, s := range res.Squads {
			ids[i] = s.Squad.IDs()
		}
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestSampleGroups_GroupWithoutDrawIsInfeasible(t *testing.T) {
	groups := sampleGroups()
	groups[0].Budget = 50

	p := NewPipeline(nil, logger.Discard())
	res, err := p.SampleGroups(context.Background(), rand.New(rand.NewSource(1)), samplePool(), sampleConstraints(), groups,
		PipelineOptions{DrawsPerGroup: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInfeasible, res.Status)
	assert.Empty(t, res.Squads)
}

func TestSampleGroups_CombinationLimit(t *testing.T) {
	p := NewPipeline(nil, logger.Discard())
	_, err := p.SampleGroups(context.Background(), rand.New(rand.NewSource(1)), samplePool(), sampleConstraints(), sampleGroups(),
		PipelineOptions{DrawsPerGroup: 10, TopPerGroup: 10, MaxCombinations: 2}, nil)
	assert.ErrorIs(t, err, ErrTooManyCombinations)
}

func TestRankDraws(t *testing.T) {
	draws := []draw{
		{Selection: Selection{MeanWeight: 0.5, Leftover: 0}, tieBreak: 0.1},
		{Selection: Selection{MeanWeight: 0.9, Leftover: 0}, tieBreak: 0.9},
		{Selection: Selection{MeanWeight: 0.5, Leftover: 20}, tieBreak: 0.5},
		{Selection: Selection{MeanWeight: 0.5, Leftover: 20}, tieBreak: 0.2},
	}
	rankDraws(draws)

	assert.Equal(t, 0.9, draws[0].MeanWeight)
	assert.Equal(t, 0.2, draws[1].tieBreak)
	assert.Equal(t, 0.5, draws[2].tieBreak)
	assert.Equal(t, 0, draws[3].Leftover)
}
