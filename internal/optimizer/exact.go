// Package optimizer selects squads from a player pool, either exactly as a
// 0/1 integer program or heuristically through weighted random sampling and
// group combination.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/milp"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

// ExactOptimizer builds the squad integer program and hands it to a MILP solver
type ExactOptimizer struct {
	solver milp.Solver
	log    *logrus.Logger
}

// NewExactOptimizer wires a solver; a nil solver uses branch and bound with
// default limits
func NewExactOptimizer(solver milp.Solver, log *logrus.Logger) *ExactOptimizer {
	if log == nil {
		log = logger.GetLogger()
	}
	if solver == nil {
		solver = milp.NewBranchAndBound(0, log)
	}
	return &ExactOptimizer{solver: solver, log: log}
}

// Solve picks the squad maximizing the summed weight. weights[i] belongs to
// players[i]. Anything short of a proven optimum is reported as infeasible;
// the error is only set for invalid input or cancellation.
func (o *ExactOptimizer) Solve(ctx context.Context, players []models.Player, cs models.ConstraintSet, weights []float64) (models.SquadResult, error) {
	if len(weights) != len(players) {
		return models.SquadResult{}, fmt.Errorf("got %d weights for %d players", len(weights), len(players))
	}
	if err := cs.Validate(); err != nil {
		return models.SquadResult{}, err
	}

	runID := uuid.New().String()
	log := logger.WithRun(o.log, runID, "exact")
	start := time.Now()
	log.WithFields(logrus.Fields{
		"pool_size":      len(players),
		"budget":         cs.Budget,
		"required_count": cs.RequiredCount,
	}).Info("Starting exact optimization")

	candidates := eligible(players, weights, cs)
	if len(candidates) < cs.RequiredCount {
		log.WithField("eligible", len(candidates)).Info("Not enough eligible players")
		return models.Infeasible(fmt.Sprintf("%d eligible players for %d slots", len(candidates), cs.RequiredCount)), nil
	}

	eligibleCount := len(candidates)
	candidates = dropDominated(candidates, cs)

	problem, vars, err := buildProblem(candidates, cs)
	if err != nil {
		return models.SquadResult{}, err
	}
	hinted := false
	if picks := greedySquad(candidates, cs); picks != nil {
		hint := make([]milp.Var, len(picks))
		for k, i := range picks {
			hint[k] = vars[i]
		}
		hinted = problem.SetHint(hint) == nil
	}
	log.WithFields(logrus.Fields{
		"eligible":   eligibleCount,
		"candidates": len(candidates),
		"hinted":     hinted,
	}).Debug("Presolve finished")

	sol, err := o.solver.Solve(ctx, problem)
	if err != nil {
		log.WithError(err).Warn("Solver aborted")
		return models.Infeasible("solver aborted"), err
	}
	if sol.Status != milp.Optimal {
		log.WithFields(logrus.Fields{
			"solver_status": sol.Status.String(),
			"nodes":         sol.Nodes,
			"duration":      time.Since(start),
		}).Info("Exact optimization found no squad")
		return models.Infeasible("solver status " + sol.Status.String()), nil
	}

	selected := make([]models.Player, 0, cs.RequiredCount)
	objective := 0.0
	for i, c := range candidates {
		if sol.Selected(vars[i]) {
			selected = append(selected, c.player)
			objective += c.weight
		}
	}
	squad := models.NewSquad(selected...)
	if err := cs.Check(squad); err != nil {
		// rounding drift in the relaxation, never a valid squad
		log.WithError(err).Warn("Solver returned a squad that violates constraints")
		return models.Infeasible("solver returned an invalid squad: " + err.Error()), nil
	}

	log.WithFields(logrus.Fields{
		"objective": objective,
		"cost":      squad.Cost(),
		"nodes":     sol.Nodes,
		"duration":  time.Since(start),
	}).Info("Exact optimization completed")

	return models.SquadResult{Status: models.StatusOK, Squad: squad, Objective: objective}, nil
}

type candidate struct {
	player models.Player
	weight float64
}

// eligible drops players no valid squad can contain: too expensive on their
// own, from a team capped at zero, or not fully available when required.
// Retained players stay so the retention row can still be met.
func eligible(players []models.Player, weights []float64, cs models.ConstraintSet) []candidate {
	out := make([]candidate, 0, len(players))
	for i, p := range players {
		if p.Cost > cs.Budget {
			continue
		}
		if max, ok := cs.TeamMax(p.Team); ok && max == 0 {
			continue
		}
		if cs.RequireFullAvailability && p.Availability() < models.FullAvailability {
			continue
		}
		if bound, ok := cs.PositionBounds[p.Position]; ok && bound.Max == 0 {
			continue
		}
		out = append(out, candidate{player: p, weight: weights[i]})
	}
	return out
}

// dropDominated removes players some optimal squad can always do without.
// A player goes when kept players of the same position that cost no more and
// weigh at least as much come from enough distinct teams that, whatever else
// is picked, one of them is unpicked and its team has room: the position
// maximum plus the number of other teams that can be full at once. Swapping
// that player in keeps every row satisfied and the objective from falling.
// Retained players are never dropped and never stand in for another.
func dropDominated(candidates []candidate, cs models.ConstraintSet) []candidate {
	held := make(map[int]bool)
	if cs.RetainCount() >= 0 {
		for _, id := range cs.RetainFrom {
			held[id] = true
		}
	}

	minTeamMax := 0
	for _, c := range candidates {
		if max, ok := cs.TeamMax(c.player.Team); ok && max > 0 && (minTeamMax == 0 || max < minTeamMax) {
			minTeamMax = max
		}
	}
	fullTeams := 0
	if minTeamMax > 0 {
		fullTeams = (cs.RequiredCount - 1) / minTeamMax
	}

	// dominators always come first: heavier, then cheaper, then lower id
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := candidates[order[a]], candidates[order[b]]
		if ca.weight != cb.weight {
			return ca.weight > cb.weight
		}
		if ca.player.Cost != cb.player.Cost {
			return ca.player.Cost < cb.player.Cost
		}
		return ca.player.ID < cb.player.ID
	})

	kept := make(map[models.Position][]int)
	dropped := make([]bool, len(candidates))
	for _, i := range order {
		c := candidates[i]
		if held[c.player.ID] {
			continue
		}
		need := positionMax(cs, c.player.Position) + fullTeams
		teams := make(map[string]bool)
		for _, k := range kept[c.player.Position] {
			if candidates[k].player.Cost <= c.player.Cost {
				teams[candidates[k].player.Team] = true
			}
		}
		if len(teams) >= need {
			dropped[i] = true
			continue
		}
		kept[c.player.Position] = append(kept[c.player.Position], i)
	}

	out := make([]candidate, 0, len(candidates))
	for i, c := range candidates {
		if !dropped[i] {
			out = append(out, c)
		}
	}
	return out
}

func positionMax(cs models.ConstraintSet, pos models.Position) int {
	if bound, ok := cs.PositionBounds[pos]; ok && bound.Max < cs.RequiredCount {
		return bound.Max
	}
	return cs.RequiredCount
}

// greedySquad picks by descending weight while keeping enough budget to fill
// the remaining position minimums with the cheapest players. It returns
// candidate indices, or nil when the pass gets stuck. Retention is not
// handled, so it gives up when a retention row applies.
func greedySquad(candidates []candidate, cs models.ConstraintSet) []int {
	if cs.RetainCount() >= 0 || len(candidates) < cs.RequiredCount {
		return nil
	}

	byWeight := make([]int, len(candidates))
	cheapest := make(map[models.Position][]int)
	for i, c := range candidates {
		byWeight[i] = i
		cheapest[c.player.Position] = append(cheapest[c.player.Position], i)
	}
	sort.SliceStable(byWeight, func(a, b int) bool {
		return candidates[byWeight[a]].weight > candidates[byWeight[b]].weight
	})
	for _, idx := range cheapest {
		idx := idx
		sort.SliceStable(idx, func(a, b int) bool {
			return candidates[idx[a]].player.Cost < candidates[idx[b]].player.Cost
		})
	}

	taken := make([]bool, len(candidates))
	positions := make(map[models.Position]int)
	teams := make(map[string]int)
	spent := 0
	var picks []int

	// reserve is the cheapest cost of meeting every position minimum after
	// also taking next
	reserve := func(next int) int {
		total := 0
		for pos, bound := range cs.PositionBounds {
			short := bound.Min - positions[pos]
			if candidates[next].player.Position == pos {
				short--
			}
			for _, i := range cheapest[pos] {
				if short <= 0 {
					break
				}
				if taken[i] || i == next {
					continue
				}
				total += candidates[i].player.Cost
				short--
			}
		}
		return total
	}

	for _, i := range byWeight {
		if len(picks) == cs.RequiredCount {
			break
		}
		p := candidates[i].player
		if positions[p.Position] >= positionMax(cs, p.Position) {
			continue
		}
		if max, ok := cs.TeamMax(p.Team); ok && teams[p.Team] >= max {
			continue
		}
		if spent+p.Cost+reserve(i) > cs.Budget {
			continue
		}
		taken[i] = true
		positions[p.Position]++
		teams[p.Team]++
		spent += p.Cost
		picks = append(picks, i)
	}

	if len(picks) != cs.RequiredCount {
		return nil
	}
	return picks
}

func buildProblem(candidates []candidate, cs models.ConstraintSet) (*milp.Problem, []milp.Var, error) {
	problem := milp.NewProblem("squad")
	vars := make([]milp.Var, len(candidates))
	objective := make([]milp.Term, len(candidates))
	for i, c := range candidates {
		v, err := problem.AddBinary(strconv.Itoa(c.player.ID))
		if err != nil {
			return nil, nil, err
		}
		vars[i] = v
		objective[i] = milp.Term{Var: v, Coef: c.weight}
	}
	if err := problem.SetObjective(objective); err != nil {
		return nil, nil, err
	}

	var constraintErr error
	add := func(label string, terms []milp.Term, sense milp.Sense, rhs float64) {
		if constraintErr == nil {
			constraintErr = problem.AddConstraint(label, terms, sense, rhs)
		}
	}
	rowOf := func(include func(models.Player) bool, coef func(models.Player) float64) []milp.Term {
		var terms []milp.Term
		for i, c := range candidates {
			if include(c.player) {
				terms = append(terms, milp.Term{Var: vars[i], Coef: coef(c.player)})
			}
		}
		return terms
	}
	all := func(models.Player) bool { return true }
	one := func(models.Player) float64 { return 1 }

	add("budget", rowOf(all, func(p models.Player) float64 { return float64(p.Cost) }), milp.LessEq, float64(cs.Budget))
	add("count", rowOf(all, one), milp.Equal, float64(cs.RequiredCount))

	if keep := cs.RetainCount(); keep >= 0 {
		held := make(map[int]bool, len(cs.RetainFrom))
		for _, id := range cs.RetainFrom {
			held[id] = true
		}
		add("retain", rowOf(func(p models.Player) bool { return held[p.ID] }, one), milp.Equal, float64(keep))
	}

	for _, pos := range cs.SortedPositions() {
		bound := cs.PositionBounds[pos]
		terms := rowOf(func(p models.Player) bool { return p.Position == pos }, one)
		label := "position " + string(pos)
		if bound.Exact() {
			add(label, terms, milp.Equal, float64(bound.Min))
			continue
		}
		if bound.Min > 0 {
			add(label+" min", terms, milp.GreaterEq, float64(bound.Min))
		}
		add(label+" max", terms, milp.LessEq, float64(bound.Max))
	}

	teams := make(map[string]bool)
	for _, c := range candidates {
		teams[c.player.Team] = true
	}
	names := make([]string, 0, len(teams))
	for team := range teams {
		names = append(names, team)
	}
	sort.Strings(names)
	for _, team := range names {
		max, ok := cs.TeamMax(team)
		if !ok {
			continue
		}
		team := team
		add("team "+team, rowOf(func(p models.Player) bool { return p.Team == team }, one), milp.LessEq, float64(max))
	}

	if cs.RequireFullAvailability {
		add("availability", rowOf(all, models.Player.Availability), milp.Equal, models.FullAvailability*float64(cs.RequiredCount))
	}

	if constraintErr != nil {
		return nil, nil, constraintErr
	}
	return problem, vars, nil
}
