package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/scoring"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

// WeightColumnPrefix names the per-group weight columns attached to players
const WeightColumnPrefix = "w_"

// PickGroup is one tier of the sampled squad: its own weight recipe, budget
// and position quota
type PickGroup struct {
	Name      string                  `json:"name" validate:"required"`
	Weights   models.WeightSpec       `json:"weights"`
	Budget    int                     `json:"budget" validate:"gte=0"`
	Positions map[models.Position]int `json:"positions" validate:"required"`
}

// Column is the weight column the group draws on
func (g PickGroup) Column() string {
	return WeightColumnPrefix + g.Name
}

// PipelineOptions tunes the sampling pipeline
type PipelineOptions struct {
	DrawsPerGroup int
	// TopPerGroup is how many ranked draws of each group enter the product
	TopPerGroup     int
	TopN            int
	RankKeys        []string
	MaxCombinations int
	Concurrency     int
}

// draw is one successful pick with its tie-break key
type draw struct {
	Selection
	tieBreak float64
}

// GroupDraws are the ranked, truncated draws of a group
type GroupDraws struct {
	Name        string      `json:"name"`
	Column      string      `json:"column"`
	ExtraBudget int         `json:"extra_budget"`
	Attempted   int         `json:"attempted"`
	Draws       []Selection `json:"draws"`
}

// ProgressEvent reports a finished group
type ProgressEvent struct {
	RunID      string `json:"run_id"`
	Group      string `json:"group"`
	Index      int    `json:"index"`
	Groups     int    `json:"groups"`
	Successful int    `json:"successful"`
	Draws      int    `json:"draws"`
}

// PipelineResult is the outcome of SampleGroups
type PipelineResult struct {
	RunID  string        `json:"run_id"`
	Status models.Status `json:"status"`
	Groups []GroupDraws  `json:"groups"`
	CombineResult
}

// Pipeline runs the heuristic strategy: weighted draws per pick group, then
// the group combiner
type Pipeline struct {
	sampler *Sampler
	log     *logrus.Logger
}

// NewPipeline wires a sampler into the group pipeline
func NewPipeline(sampler *Sampler, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	if sampler == nil {
		sampler = NewSampler(0, 0, log)
	}
	return &Pipeline{sampler: sampler, log: log}
}

// SampleGroups scores every group over the whole pool, draws each group in
// order carrying the best draw's leftover budget into the next group, and
// combines the retained draws. progress may be nil.
func (p *Pipeline) SampleGroups(ctx context.Context, rng *rand.Rand, players []models.Player,
	cs models.ConstraintSet, groups []PickGroup, opts PipelineOptions, progress func(ProgressEvent)) (PipelineResult, error) {

	runID := uuid.New().String()
	log := logger.WithRun(p.log, runID, "sample")
	start := time.Now()
	result := PipelineResult{RunID: runID}

	if len(groups) == 0 {
		return result, fmt.Errorf("no pick groups")
	}
	if opts.DrawsPerGroup <= 0 {
		opts.DrawsPerGroup = 1
	}
	if opts.TopPerGroup <= 0 {
		opts.TopPerGroup = opts.DrawsPerGroup
	}

	pool := WithGroupWeights(scoring.DeriveMetrics(players), groups)
	if cs.RequireFullAvailability {
		pool = fullyAvailable(pool)
	}
	teamQuota := teamQuotaFor(pool, cs)

	log.WithFields(logrus.Fields{
		"pool_size":       len(pool),
		"groups":          len(groups),
		"draws_per_group": opts.DrawsPerGroup,
	}).Info("Starting group sampling")

	extra := 0
	retained := make([][]models.Squad, len(groups))
	for gi, group := range groups {
		req := PickRequest{
			Players:   pool,
			WeightKey: group.Column(),
			Budget:    group.Budget + extra,
			Positions: group.Positions,
			TeamQuota: teamQuota,
		}
		draws, err := p.drawGroup(ctx, rng, req, opts)
		if err != nil {
			return result, err
		}

		gd := GroupDraws{Name: group.Name, Column: group.Column(), ExtraBudget: extra, Attempted: opts.DrawsPerGroup}
		for _, d := range draws {
			gd.Draws = append(gd.Draws, d.Selection)
			retained[gi] = append(retained[gi], d.Squad)
		}
		result.Groups = append(result.Groups, gd)

		if progress != nil {
			progress(ProgressEvent{
				RunID:      runID,
				Group:      group.Name,
				Index:      gi,
				Groups:     len(groups),
				Successful: len(draws),
				Draws:      opts.DrawsPerGroup,
			})
		}

		if len(draws) == 0 {
			log.WithField("group", group.Name).Info("Group produced no valid draw")
			result.Status = models.StatusInfeasible
			return result, nil
		}
		extra = draws[0].Leftover
	}

	if n := CombinationCount(retained); opts.MaxCombinations > 0 && n > opts.MaxCombinations {
		return result, fmt.Errorf("%w: %d exceeds limit %d", ErrTooManyCombinations, n, opts.MaxCombinations)
	}

	combined, err := Combine(retained, CombineOptions{
		RankKeys:     opts.RankKeys,
		TopN:         opts.TopN,
		MeanPrefixes: []string{WeightColumnPrefix},
		Constraints:  &cs,
	})
	if err != nil {
		return result, err
	}
	result.CombineResult = combined
	result.Status = combined.Status

	log.WithFields(logrus.Fields{
		"status":     result.Status,
		"considered": combined.Considered,
		"discarded":  combined.Discarded,
		"returned":   len(combined.Squads),
		"duration":   time.Since(start),
	}).Info("Group sampling completed")
	return result, nil
}

// WithGroupWeights attaches every group's weight column to copies of players
func WithGroupWeights(players []models.Player, groups []PickGroup) []models.Player {
	out := players
	for _, g := range groups {
		out, _ = scoring.ScoreAndAttach(out, g.Weights, g.Column())
	}
	return out
}

// drawGroup runs the independent draws of one group concurrently. Seeds are
// taken from rng up front so the outcome does not depend on scheduling.
func (p *Pipeline) drawGroup(ctx context.Context, rng *rand.Rand, req PickRequest, opts PipelineOptions) ([]draw, error) {
	seeds := make([]int64, opts.DrawsPerGroup)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	slots := make([]*draw, len(seeds))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			local := rand.New(rand.NewSource(seed))
			sel, ok := p.sampler.Pick(local, req)
			if !ok {
				return nil
			}
			slots[i] = &draw{Selection: sel, tieBreak: local.Float64()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	draws := make([]draw, 0, len(slots))
	for _, d := range slots {
		if d != nil {
			draws = append(draws, *d)
		}
	}
	rankDraws(draws)
	if len(draws) > opts.TopPerGroup {
		draws = draws[:opts.TopPerGroup]
	}
	return draws, nil
}

// rankDraws orders by highest mean weight, then most leftover budget, then
// the random tie-break
func rankDraws(draws []draw) {
	sort.SliceStable(draws, func(i, j int) bool {
		a, b := draws[i], draws[j]
		if a.MeanWeight != b.MeanWeight {
			return a.MeanWeight > b.MeanWeight
		}
		if a.Leftover != b.Leftover {
			return a.Leftover > b.Leftover
		}
		return a.tieBreak < b.tieBreak
	})
}

// fullyAvailable keeps the players cleared to play. Weights are scored over
// the whole pool first so filtering does not shift the normalization.
func fullyAvailable(players []models.Player) []models.Player {
	out := make([]models.Player, 0, len(players))
	for _, p := range players {
		if p.Availability() >= models.FullAvailability {
			out = append(out, p)
		}
	}
	return out
}

func teamQuotaFor(players []models.Player, cs models.ConstraintSet) map[string]int {
	quota := make(map[string]int)
	for _, p := range players {
		if max, ok := cs.TeamMax(p.Team); ok {
			quota[p.Team] = max
		} else {
			quota[p.Team] = len(players)
		}
	}
	return quota
}
