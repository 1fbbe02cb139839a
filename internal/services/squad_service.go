package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/milp"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/scoring"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/transfer"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNoPickGroups  = errors.New("run config has no pick groups")
)

// Options are the service-wide optimization limits
type Options struct {
	MILPMaxNodes       int
	SamplerMaxAttempts int
	DrawsPerGroup      int
	TopPerGroup        int
	MaxCombinations    int
	Concurrency        int
}

// OptionsFromConfig reads the limits from the service config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MILPMaxNodes:       cfg.MILPMaxNodes,
		SamplerMaxAttempts: cfg.SamplerMaxAttempts,
		DrawsPerGroup:      cfg.SamplerDrawsPerGroup,
		TopPerGroup:        cfg.SamplerTopN,
		MaxCombinations:    cfg.MaxCombinations,
		Concurrency:        cfg.SamplerConcurrency,
	}
}

// SquadService runs the optimization strategies over a player pool and a
// run config. It is shared by the HTTP handlers and the CLI.
type SquadService struct {
	exact    *optimizer.ExactOptimizer
	pipeline *optimizer.Pipeline
	planner  *transfer.Planner
	opts     Options
	log      *logrus.Logger
}

// NewSquadService wires the exact optimizer, the sampling pipeline and the
// transfer planner
func NewSquadService(opts Options, log *logrus.Logger) *SquadService {
	if log == nil {
		log = logger.GetLogger()
	}
	exact := optimizer.NewExactOptimizer(milp.NewBranchAndBound(opts.MILPMaxNodes, log), log)
	sampler := optimizer.NewSampler(0, opts.SamplerMaxAttempts, log)
	return &SquadService{
		exact:    exact,
		pipeline: optimizer.NewPipeline(sampler, log),
		planner:  transfer.NewPlanner(exact),
		opts:     opts,
		log:      log,
	}
}

// OptimizeResult is an exact squad with its summary
type OptimizeResult struct {
	models.SquadResult
	Evaluation *models.Evaluation `json:"evaluation,omitempty"`
	Captain    *models.Player     `json:"captain,omitempty"`
	Vice       *models.Player     `json:"vice_captain,omitempty"`
}

// ScoredPlayer is one row of a scoring run
type ScoredPlayer struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Position models.Position `json:"position"`
	Team     string          `json:"team"`
	Cost     int             `json:"cost"`
	Weight   float64         `json:"weight"`
}

// SwapQuery selects the squad and bank for single-swap enumeration
type SwapQuery struct {
	Squad []int `json:"squad" binding:"required"`
	Bank  int   `json:"bank"`
	// TopN limits replacements per outgoing player
	TopN     int      `json:"top_n"`
	RankKeys []string `json:"rank_keys,omitempty"`
}

// ReoptimizeQuery describes a transfer window
type ReoptimizeQuery struct {
	Squad             []int    `json:"squad" binding:"required"`
	Transfers         int      `json:"transfers"`
	FreeTransfers     int      `json:"free_transfers"`
	PointsPerTransfer *float64 `json:"points_per_transfer,omitempty"`
}

// scored derives metrics and attaches the run weights under the weight column name
func scored(pool models.Pool, spec models.WeightSpec) ([]models.Player, []float64, error) {
	if err := pool.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: pool: %v", ErrInvalidInput, err)
	}
	players, weights := scoring.ScoreAndAttach(scoring.DeriveMetrics(pool.Players), spec, spec.Name)
	return players, weights, nil
}

// Optimize solves the exact squad program
func (s *SquadService) Optimize(ctx context.Context, pool models.Pool, rc config.RunConfig) (OptimizeResult, error) {
	players, weights, err := scored(pool, rc.Weights)
	if err != nil {
		return OptimizeResult{}, err
	}
	cs := rc.Constraints.WithTeamLimits(pool.TeamLimits())

	res, err := s.exact.Solve(ctx, players, cs, weights)
	if err != nil {
		return OptimizeResult{}, err
	}
	out := OptimizeResult{SquadResult: res}
	if res.OK() {
		eval := res.Squad.Evaluate(rc.Weights.Name)
		captain, vice := res.Squad.Captains()
		out.Evaluation, out.Captain, out.Vice = &eval, &captain, &vice
	}
	return out, nil
}

// Sample runs the group pipeline with a seeded generator. progress may be nil.
func (s *SquadService) Sample(ctx context.Context, pool models.Pool, rc config.RunConfig, seed int64,
	progress func(optimizer.ProgressEvent)) (optimizer.PipelineResult, error) {

	if len(rc.PickGroups) == 0 {
		return optimizer.PipelineResult{}, ErrNoPickGroups
	}
	if err := pool.Validate(); err != nil {
		return optimizer.PipelineResult{}, fmt.Errorf("%w: pool: %v", ErrInvalidInput, err)
	}

	opts := optimizer.PipelineOptions{
		DrawsPerGroup:   s.opts.DrawsPerGroup,
		TopPerGroup:     s.opts.TopPerGroup,
		TopN:            rc.TopN,
		RankKeys:        rc.RankKeys,
		MaxCombinations: s.opts.MaxCombinations,
		Concurrency:     s.opts.Concurrency,
	}
	if rc.DrawsPerGroup > 0 {
		opts.DrawsPerGroup = rc.DrawsPerGroup
	}
	if rc.TopPerGroup > 0 {
		opts.TopPerGroup = rc.TopPerGroup
	}

	cs := rc.Constraints.WithTeamLimits(pool.TeamLimits())
	rng := rand.New(rand.NewSource(seed))
	return s.pipeline.SampleGroups(ctx, rng, pool.Players, cs, rc.PickGroups, opts, progress)
}

// Swaps enumerates and ranks every single-player transfer of q.Squad
func (s *SquadService) Swaps(pool models.Pool, rc config.RunConfig, q SwapQuery) ([]models.TransferCandidate, error) {
	players, _, err := scored(pool, rc.Weights)
	if err != nil {
		return nil, err
	}
	squad, err := squadFrom(players, q.Squad)
	if err != nil {
		return nil, err
	}

	candidates := transfer.SingleSwaps(squad, players, transfer.SwapOptions{
		WeightKey:   rc.Weights.Name,
		Bank:        q.Bank,
		TopN:        q.TopN,
		Constraints: rc.Constraints.WithTeamLimits(pool.TeamLimits()),
	})
	if err := transfer.Rank(candidates, rc.Weights.Name, q.RankKeys); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"squad_size": squad.Len(),
		"candidates": len(candidates),
	}).Debug("Single swaps evaluated")
	return candidates, nil
}

// Reoptimize finds the best squad reachable with q.Transfers transfers
func (s *SquadService) Reoptimize(ctx context.Context, pool models.Pool, rc config.RunConfig, q ReoptimizeQuery) (transfer.Plan, error) {
	players, weights, err := scored(pool, rc.Weights)
	if err != nil {
		return transfer.Plan{}, err
	}
	current, err := squadFrom(players, q.Squad)
	if err != nil {
		return transfer.Plan{}, err
	}

	per := float64(transfer.DefaultPointsPerTransfer)
	if q.PointsPerTransfer != nil {
		per = *q.PointsPerTransfer
	}
	return s.planner.Reoptimize(ctx, transfer.ReoptimizeRequest{
		Current:           current,
		Pool:              players,
		Weights:           weights,
		Constraints:       rc.Constraints.WithTeamLimits(pool.TeamLimits()),
		Transfers:         q.Transfers,
		FreeTransfers:     q.FreeTransfers,
		PointsPerTransfer: per,
	})
}

// Score weights every pool player with spec, in pool order
func (s *SquadService) Score(pool models.Pool, spec models.WeightSpec) ([]ScoredPlayer, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	_, weights, err := scored(pool, spec)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredPlayer, len(pool.Players))
	for i, p := range pool.Players {
		out[i] = ScoredPlayer{ID: p.ID, Name: p.Name, Position: p.Position, Team: p.Team, Cost: p.Cost, Weight: weights[i]}
	}
	return out, nil
}

func squadFrom(players []models.Player, ids []int) (models.Squad, error) {
	byID := make(map[int]models.Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	picked := make([]models.Player, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return models.Squad{}, fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
		}
		picked = append(picked, p)
	}
	squad := models.NewSquad(picked...)
	if squad.HasDuplicates() {
		return models.Squad{}, fmt.Errorf("%w: squad lists a player twice", ErrInvalidInput)
	}
	return squad, nil
}
