package scoring

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
)

func player(id int, metrics map[string]float64) models.Player {
	return models.Player{ID: id, Position: models.Midfielder, Team: "T", Cost: 50, Metrics: metrics}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, Normalize([]float64{2, 4, 6}))
	assert.Equal(t, []float64{0, 0, 0}, Normalize([]float64{3, 3, 3}))
	assert.Empty(t, Normalize(nil))
}

func TestNormalize_UnitRangeIsExact(t *testing.T) {
	for _, values := range [][]float64{{1, 50, 20}, {-0.3, 0.7, 0.1}, {3, 10, 10}} {
		out := Normalize(values)
		assert.Equal(t, 1.0, out[1], "%v", values)
		for _, v := range out {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	assert.Equal(t, 0.0, Normalize([]float64{1, 50, 20})[0])
}

func TestNormalize_Idempotent(t *testing.T) {
	once := Normalize([]float64{5, 1, 9, 3})
	assert.Equal(t, once, Normalize(once))

	constant := Normalize([]float64{0.4, 0.4})
	assert.Equal(t, constant, Normalize(constant))
}

func TestScore_AdditiveSimilarityMultiplicative(t *testing.T) {
	players := []models.Player{
		player(1, map[string]float64{"a": 0, "b": 10, "m": 1}),
		player(2, map[string]float64{"a": 5, "b": 20, "m": 0}),
		player(3, map[string]float64{"a": 10, "b": 30, "m": 2}),
	}
	spec := models.WeightSpec{
		Name:           "mix",
		Additive:       map[string]float64{"a": 2},
		Similarity:     map[string]models.SimilarityTerm{"b": {Coefficient: 1, Target: 0.5}},
		Multiplicative: map[string]float64{"m": 3},
	}

	// normalized a = 0, .5, 1 ; b = 0, .5, 1 ; m = .5, 0, 1
	// raw = (2a + (1-|.5-b|)) * 3m = (0+.5)*1.5, (1+1)*0, (2+.5)*3
	scores := Score(players, spec)
	require.Len(t, scores, 3)
	assert.InDelta(t, 0.75/7.5, scores[0], 1e-9)
	assert.InDelta(t, 0.0, scores[1], 1e-9)
	assert.InDelta(t, 1.0, scores[2], 1e-9)
}

func TestScore_RepeatableAcrossRuns(t *testing.T) {
	players := make([]models.Player, 0, 30)
	for i := 0; i < 30; i++ {
		f := float64(i)
		players = append(players, player(i+1, map[string]float64{
			"a": f * 0.1, "b": 30 - f, "c": f * f / 7, "d": float64(i%4) * 1.3, "e": 1 / (f + 3), "m": float64(i%5) + 1,
		}))
	}
	spec := models.WeightSpec{
		Name:           "many",
		Additive:       map[string]float64{"a": 0.3, "b": 0.7, "c": 1.1, "d": 0.13, "e": 2.9},
		Similarity:     map[string]models.SimilarityTerm{"a": {Coefficient: 0.2, Target: 0.3}, "c": {Coefficient: 0.9, Target: 0.6}},
		Multiplicative: map[string]float64{"m": 1.7, "d": 0.4},
	}

	first := Score(players, spec)
	for run := 0; run < 20; run++ {
		assert.Equal(t, first, Score(players, spec), "run %d", run)
	}
}

func TestScore_MissingMetricIsZero(t *testing.T) {
	players := []models.Player{
		player(1, map[string]float64{"a": 4}),
		player(2, nil),
	}
	scores := Score(players, models.WeightSpec{Name: "a", Additive: map[string]float64{"a": 1}})
	assert.Equal(t, []float64{1, 0}, scores)
}

func TestScore_ConstantMetricYieldsZeros(t *testing.T) {
	players := []models.Player{
		player(1, map[string]float64{"a": 4}),
		player(2, map[string]float64{"a": 4}),
	}
	scores := Score(players, models.WeightSpec{Name: "a", Additive: map[string]float64{"a": 1}})
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestScore_OutputInUnitRange(t *testing.T) {
	players := []models.Player{
		player(1, map[string]float64{"a": -3, "b": 8}),
		player(2, map[string]float64{"a": 12, "b": 1}),
		player(3, map[string]float64{"a": 7, "b": 4}),
		player(4, map[string]float64{"a": 0, "b": 0}),
	}
	scores := Score(players, models.WeightSpec{Name: "s", Additive: map[string]float64{"a": 1, "b": -2}})
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func rankOf(scores []float64, idx int) int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	for rank, i := range order {
		if i == idx {
			return rank
		}
	}
	return -1
}

func TestScore_AdditiveMonotonicity(t *testing.T) {
	// player 0 is above the mean on "a", player 1 strictly below, both equal on "b"
	players := []models.Player{
		player(1, map[string]float64{"a": 9, "b": 2}),
		player(2, map[string]float64{"a": 1, "b": 2}),
		player(3, map[string]float64{"a": 5, "b": 9}),
		player(4, map[string]float64{"a": 3, "b": 0}),
	}

	for _, coef := range []float64{0, 1, 2, 5, 20} {
		spec := models.WeightSpec{Name: "m", Additive: map[string]float64{"a": coef, "b": 1}}
		scores := Score(players, spec)
		assert.GreaterOrEqual(t, scores[0], scores[1], "coef %v", coef)
		if coef > 0 {
			assert.Greater(t, scores[0], scores[1], "coef %v", coef)
			assert.Less(t, rankOf(scores, 0), rankOf(scores, 1), "coef %v", coef)
		}
	}
}

func TestAttach(t *testing.T) {
	players := []models.Player{player(1, map[string]float64{"a": 1}), player(2, nil)}
	attached := Attach(players, "w_tier", []float64{0.25, 0.75})

	assert.Equal(t, 0.25, attached[0].Metric("w_tier"))
	assert.Equal(t, 0.75, attached[1].Metric("w_tier"))
	_, touched := players[0].Metrics["w_tier"]
	assert.False(t, touched, "input players must not be mutated")
}

func TestDeriveMetrics(t *testing.T) {
	players := []models.Player{player(1, map[string]float64{
		models.MetricStrengthAttackHome: 1200,
		models.MetricStrengthAttackAway: 1300,
		models.MetricTransfersIn:        500,
		models.MetricTransfersOut:       200,
	})}

	derived := DeriveMetrics(players)
	assert.Equal(t, 1250.0, derived[0].Metric(MetricStrengthAttack))
	assert.Equal(t, 300.0, derived[0].Metric(MetricTransfersInOut))
	assert.Equal(t, 0.0, derived[0].Metric(MetricStrengthDefence))
	assert.NotContains(t, players[0].Metrics, MetricStrengthAttack)
}
