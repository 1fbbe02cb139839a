package optimizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
)

var (
	ErrUnknownRankKey      = errors.New("unknown rank key")
	ErrTooManyCombinations = errors.New("too many combinations")
)

// CombineOptions controls ranking and filtering of combined squads
type CombineOptions struct {
	RankKeys []string
	// TopN truncates the ranked list; 0 keeps everything
	TopN int
	// MeanPrefixes select the metric columns reported as avg_<column>
	MeanPrefixes []string
	// Constraints, when set, rejects every combination that fails
	// ConstraintSet.Check
	Constraints *models.ConstraintSet
}

// CombineResult is the ranked outcome of a combination
type CombineResult struct {
	Status     models.Status        `json:"status"`
	Squads     []models.RankedSquad `json:"squads"`
	Considered int                  `json:"considered"`
	Discarded  int                  `json:"discarded"`
}

// CombinationCount is the size of the Cartesian product of groups. It
// saturates at math.MaxInt so callers can compare it against a limit.
func CombinationCount(groups [][]models.Squad) int {
	if len(groups) == 0 {
		return 0
	}
	total := 1
	for _, g := range groups {
		if len(g) == 0 {
			return 0
		}
		if total > math.MaxInt/len(g) {
			return math.MaxInt
		}
		total *= len(g)
	}
	return total
}

// Combine concatenates one squad from every group for every element of the
// Cartesian product, evaluates the result and ranks it descending by
// opts.RankKeys. The product grows exponentially with the number of groups;
// bounding it is up to the caller (see CombinationCount).
func Combine(groups [][]models.Squad, opts CombineOptions) (CombineResult, error) {
	if CombinationCount(groups) == 0 {
		return CombineResult{Status: models.StatusEmptyCombination}, nil
	}
	if err := checkRankKeys(opts.RankKeys, opts.MeanPrefixes); err != nil {
		return CombineResult{}, err
	}

	result := CombineResult{Status: models.StatusOK}
	index := make([]int, len(groups))
	parts := make([]models.Squad, len(groups))
	for {
		for g, i := range index {
			parts[g] = groups[g][i]
		}
		squad := models.Concat(parts...)
		result.Considered++

		if admissible(squad, opts.Constraints) {
			result.Squads = append(result.Squads, models.RankedSquad{
				Squad:      squad,
				Evaluation: squad.Evaluate(opts.MeanPrefixes...),
			})
		} else {
			result.Discarded++
		}

		if !advance(index, groups) {
			break
		}
	}

	if len(result.Squads) == 0 {
		result.Status = models.StatusEmptyCombination
		return result, nil
	}

	if err := Rank(result.Squads, opts.RankKeys); err != nil {
		return CombineResult{}, err
	}
	if opts.TopN > 0 && len(result.Squads) > opts.TopN {
		result.Squads = result.Squads[:opts.TopN]
	}
	return result, nil
}

// Rank sorts squads descending lexicographically by keys, stable for ties
func Rank(squads []models.RankedSquad, keys []string) error {
	for _, s := range squads {
		for _, key := range keys {
			if _, ok := s.Evaluation.Field(key); !ok {
				return fmt.Errorf("%w: %s", ErrUnknownRankKey, key)
			}
		}
	}
	sort.SliceStable(squads, func(i, j int) bool {
		return RankedBefore(squads[i].Evaluation, squads[j].Evaluation, keys)
	})
	return nil
}

// RankedBefore compares evaluations descending, key by key
func RankedBefore(a, b models.Evaluation, keys []string) bool {
	for _, key := range keys {
		va, _ := a.Field(key)
		vb, _ := b.Field(key)
		if va != vb {
			return va > vb
		}
	}
	return false
}

// checkRankKeys fails fast on keys that can never resolve: neither a fixed
// evaluation field nor a mean over a requested prefix
func checkRankKeys(keys, prefixes []string) error {
	var probe models.Evaluation
	for _, key := range keys {
		if _, ok := probe.Field(key); ok {
			continue
		}
		matched := false
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, models.MeanPrefix+prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: %s", ErrUnknownRankKey, key)
		}
	}
	return nil
}

// admissible rejects duplicated players and, when constraints are given,
// any squad that fails them
func admissible(squad models.Squad, cs *models.ConstraintSet) bool {
	if cs == nil {
		return !squad.HasDuplicates()
	}
	return cs.Check(squad) == nil
}

// advance steps the odometer; false once every combination was visited
func advance(index []int, groups [][]models.Squad) bool {
	for g := len(index) - 1; g >= 0; g-- {
		index[g]++
		if index[g] < len(groups[g]) {
			return true
		}
		index[g] = 0
	}
	return false
}
