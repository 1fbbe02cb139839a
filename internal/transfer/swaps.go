// Package transfer evaluates changes to an existing squad: every single
// player swap, or a full re-optimization that keeps most of the squad.
package transfer

import (
	"fmt"
	"sort"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
)

// TransfersPrefix selects the transfer counter columns reported as means
const TransfersPrefix = "transfers_"

// SwapOptions drives single-swap enumeration
type SwapOptions struct {
	// WeightKey is the metric column replacements are ordered by
	WeightKey string
	// Bank is the money available on top of the outgoing player's cost
	Bank int
	// TopN limits replacements per outgoing player; 0 keeps all
	TopN int
	// Constraints supplies the team maximums; positions and budget are
	// implied by the swap itself
	Constraints  models.ConstraintSet
	MeanPrefixes []string
}

// SingleSwaps returns one candidate per (outgoing player, replacement) pair.
// Replacements play the same position, fit in bank plus the outgoing cost,
// keep the team counts within bounds and are not already in the squad. The
// outgoing player stays eligible, so a hold option appears when it is in the
// pool. The result is unsorted; see Rank.
func SingleSwaps(squad models.Squad, pool []models.Player, opts SwapOptions) []models.TransferCandidate {
	prefixes := opts.MeanPrefixes
	if prefixes == nil {
		prefixes = []string{opts.WeightKey, TransfersPrefix}
	}

	var candidates []models.TransferCandidate
	for _, out := range squad.Players {
		rest := squad.Without(out.ID)
		budget := opts.Bank + out.Cost
		teamCounts := rest.CountByTeam()

		replacements := make([]models.Player, 0)
		for _, p := range pool {
			if p.Position != out.Position || p.Cost > budget {
				continue
			}
			if p.ID != out.ID && rest.Contains(p.ID) {
				continue
			}
			if max, ok := opts.Constraints.TeamMax(p.Team); ok && teamCounts[p.Team] >= max {
				continue
			}
			replacements = append(replacements, p)
		}

		sort.SliceStable(replacements, func(i, j int) bool {
			return replacements[i].Metric(opts.WeightKey) > replacements[j].Metric(opts.WeightKey)
		})
		if opts.TopN > 0 && len(replacements) > opts.TopN {
			replacements = replacements[:opts.TopN]
		}

		for _, in := range replacements {
			next := rest.With(in)
			candidates = append(candidates, models.TransferCandidate{
				Out:        out,
				In:         in,
				Squad:      next,
				Evaluation: next.Evaluate(prefixes...),
			})
		}
	}
	return candidates
}

// DefaultRankKeys orders by mean weight, then expected points this and next
// round, points, cost and mean selection percent
func DefaultRankKeys(weightKey string) []string {
	return []string{
		models.MeanPrefix + weightKey,
		models.EvalEPThis,
		models.EvalEPNext,
		models.EvalPoints,
		models.EvalCost,
		models.EvalAvgSelectPercent,
	}
}

// Rank sorts candidates descending by keys, nil keys meaning
// DefaultRankKeys(weightKey)
func Rank(candidates []models.TransferCandidate, weightKey string, keys []string) error {
	if keys == nil {
		keys = DefaultRankKeys(weightKey)
	}
	for _, c := range candidates {
		for _, key := range keys {
			if _, ok := c.Evaluation.Field(key); !ok {
				return fmt.Errorf("%w: %s", optimizer.ErrUnknownRankKey, key)
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return optimizer.RankedBefore(candidates[i].Evaluation, candidates[j].Evaluation, keys)
	})
	return nil
}
