package transfer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
)

// DefaultPointsPerTransfer is the points hit for each transfer beyond the free ones
const DefaultPointsPerTransfer = 4

// ReoptimizeRequest asks for the best squad reachable from Current with at
// most Transfers swaps
type ReoptimizeRequest struct {
	Current models.Squad
	// Pool must contain the current players; Weights[i] belongs to Pool[i]
	Pool    []models.Player
	Weights []float64
	// Constraints carries budget, positions and teams; retention is set from
	// Current and Transfers
	Constraints       models.ConstraintSet
	Transfers         int
	FreeTransfers     int
	PointsPerTransfer float64
}

// Plan is the outcome of a re-optimization with its cost/benefit summary
type Plan struct {
	Status     models.Status     `json:"status"`
	Squad      models.Squad      `json:"squad"`
	Evaluation models.Evaluation `json:"evaluation"`
	Out        []models.Player   `json:"out"`
	In         []models.Player   `json:"in"`
	// EPGain is the change in summed ep_next
	EPGain    float64       `json:"ep_gain"`
	PointCost float64       `json:"point_cost"`
	NetGain   float64       `json:"net_gain"`
	Captain   models.Player `json:"captain"`
	Vice      models.Player `json:"vice_captain"`
	Detail    string        `json:"detail,omitempty"`
}

// Planner runs retention-constrained re-optimizations
type Planner struct {
	exact *optimizer.ExactOptimizer
}

// NewPlanner wraps the exact optimizer
func NewPlanner(exact *optimizer.ExactOptimizer) *Planner {
	return &Planner{exact: exact}
}

// PointCost is the points hit for n transfers with free of them free
func PointCost(n, free int, perTransfer float64) float64 {
	return math.Max(0, float64(n-free)*perTransfer)
}

// Reoptimize keeps exactly len(Current)-Transfers current players and lets
// the solver choose the rest
func (p *Planner) Reoptimize(ctx context.Context, req ReoptimizeRequest) (Plan, error) {
	inPool := make(map[int]bool, len(req.Pool))
	for _, pl := range req.Pool {
		inPool[pl.ID] = true
	}
	for _, pl := range req.Current.Players {
		if !inPool[pl.ID] {
			return Plan{}, fmt.Errorf("current player %d missing from pool", pl.ID)
		}
	}

	cs := req.Constraints
	cs.RetainFrom = req.Current.IDs()
	transfers := req.Transfers
	cs.TransfersAllowed = &transfers

	res, err := p.exact.Solve(ctx, req.Pool, cs, req.Weights)
	if err != nil {
		return Plan{}, err
	}
	if !res.OK() {
		return Plan{Status: res.Status, Detail: res.Detail}, nil
	}

	plan := Plan{
		Status:     models.StatusOK,
		Squad:      res.Squad,
		Evaluation: res.Squad.Evaluate(TransfersPrefix),
	}
	for _, pl := range req.Current.Players {
		if !res.Squad.Contains(pl.ID) {
			plan.Out = append(plan.Out, pl)
		}
	}
	for _, pl := range res.Squad.Players {
		if !req.Current.Contains(pl.ID) {
			plan.In = append(plan.In, pl)
		}
	}
	sort.Slice(plan.Out, func(i, j int) bool { return plan.Out[i].ID < plan.Out[j].ID })
	sort.Slice(plan.In, func(i, j int) bool { return plan.In[i].ID < plan.In[j].ID })

	plan.EPGain = models.NewSquad(plan.In...).Sum(models.MetricEPNext) - models.NewSquad(plan.Out...).Sum(models.MetricEPNext)
	plan.PointCost = PointCost(len(plan.Out), req.FreeTransfers, req.PointsPerTransfer)
	plan.NetGain = plan.EPGain - plan.PointCost
	plan.Captain, plan.Vice = res.Squad.Captains()
	return plan, nil
}
