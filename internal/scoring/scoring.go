// Package scoring turns raw player metrics into one comparable weight per
// player using a configurable linear recipe.
package scoring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
)

// Normalize min-max scales values to [0,1]. A constant input maps to all 0.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	min, max := floats.Min(values), floats.Max(values)
	if max == min {
		return out
	}

	copy(out, values)
	floats.AddConst(-min, out)
	floats.Scale(1/(max-min), out)
	// scaling by the reciprocal can miss 1 by an ulp either way
	for i, v := range values {
		if v == max || out[i] > 1 {
			out[i] = 1
		}
	}
	return out
}

// Column extracts a metric for every player, missing values as 0
func Column(players []models.Player, metric string) []float64 {
	col := make([]float64, len(players))
	for i, p := range players {
		col[i] = p.Metric(metric)
	}
	return col
}

// Score computes one normalized weight per player, in input order.
// Every metric referenced by spec is normalized across players before
// the terms are applied, and the raw scores are normalized again at the end.
func Score(players []models.Player, spec models.WeightSpec) []float64 {
	if len(players) == 0 {
		return []float64{}
	}

	normalized := make(map[string][]float64)
	for _, metric := range spec.Metrics() {
		normalized[metric] = Normalize(Column(players, metric))
	}

	additive := sortedKeys(spec.Additive)
	similarity := make([]string, 0, len(spec.Similarity))
	for metric := range spec.Similarity {
		similarity = append(similarity, metric)
	}
	sort.Strings(similarity)
	multiplicative := sortedKeys(spec.Multiplicative)

	// terms apply in metric name order so rounding is the same on every run
	raw := make([]float64, len(players))
	for i := range players {
		s := 0.0
		for _, metric := range additive {
			s += spec.Additive[metric] * normalized[metric][i]
		}
		for _, metric := range similarity {
			term := spec.Similarity[metric]
			s += term.Coefficient * (1 - math.Abs(term.Target-normalized[metric][i]))
		}
		for _, metric := range multiplicative {
			s *= spec.Multiplicative[metric] * normalized[metric][i]
		}
		raw[i] = s
	}

	return Normalize(raw)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attach returns copies of players carrying weights under column, so
// evaluations can report the column's mean and samplers can draw on it.
func Attach(players []models.Player, column string, weights []float64) []models.Player {
	out := make([]models.Player, len(players))
	for i, p := range players {
		w := 0.0
		if i < len(weights) {
			w = weights[i]
		}
		out[i] = p.WithMetric(column, w)
	}
	return out
}

// ScoreAndAttach scores players with spec and stores the result in column
func ScoreAndAttach(players []models.Player, spec models.WeightSpec, column string) ([]models.Player, []float64) {
	weights := Score(players, spec)
	return Attach(players, column, weights), weights
}
