package models

import (
	"fmt"
	"math"
	"sort"
)

// SimilarityTerm rewards metric values close to Target:
// Coefficient * (1 - |Target - value|)
type SimilarityTerm struct {
	Coefficient float64 `json:"coefficient"`
	Target      float64 `json:"target"`
}

// WeightSpec is a named linear recipe over (normalized) metrics.
// Additive and similarity terms are summed first, multiplicative terms
// scale the running sum last.
type WeightSpec struct {
	Name           string                    `json:"name" validate:"required"`
	Additive       map[string]float64        `json:"add"`
	Similarity     map[string]SimilarityTerm `json:"sim,omitempty"`
	Multiplicative map[string]float64        `json:"mult,omitempty"`
}

// Validate rejects non-finite coefficients and out-of-range similarity targets
func (w WeightSpec) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("weight spec needs a name")
	}
	if len(w.Additive) == 0 && len(w.Similarity) == 0 {
		return fmt.Errorf("weight spec %s has no additive or similarity terms", w.Name)
	}
	for metric, c := range w.Additive {
		if !finite(c) {
			return fmt.Errorf("weight spec %s: additive %s is not finite", w.Name, metric)
		}
	}
	for metric, term := range w.Similarity {
		if !finite(term.Coefficient) {
			return fmt.Errorf("weight spec %s: similarity %s is not finite", w.Name, metric)
		}
		// metrics are normalized to [0,1] before the term applies
		if term.Target < 0 || term.Target > 1 {
			return fmt.Errorf("weight spec %s: similarity target %.3f for %s outside [0,1]", w.Name, term.Target, metric)
		}
	}
	for metric, c := range w.Multiplicative {
		if !finite(c) {
			return fmt.Errorf("weight spec %s: multiplicative %s is not finite", w.Name, metric)
		}
	}
	return nil
}

// Metrics returns every metric referenced by any term, sorted
func (w WeightSpec) Metrics() []string {
	set := make(map[string]bool)
	for m := range w.Additive {
		set[m] = true
	}
	for m := range w.Similarity {
		set[m] = true
	}
	for m := range w.Multiplicative {
		set[m] = true
	}
	metrics := make([]string, 0, len(set))
	for m := range set {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	return metrics
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
